package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/prover"
	"github.com/provelab/pricing-prover/internal/queue"
)

// Consumer drives the worker: it pulls batches from the work queue, deletes
// each message as soon as it parses, and hands the requests to a bounded
// pool of processing goroutines. Deleting before processing means a crash
// mid-proof loses the delivery, not the job - the record stays Processing
// and the reaper requeues it.
type Consumer struct {
	workQueue  queue.Queue
	lifecycle  *Lifecycle
	supervisor *prover.Supervisor
	aggregator *Aggregator
	logger     *slog.Logger

	concurrency int
	backoffMin  time.Duration
	backoffMax  time.Duration

	locks *keyLock
	sem   chan struct{}
	wg    sync.WaitGroup
}

type ConsumerConfig struct {
	WorkQueue   queue.Queue
	Lifecycle   *Lifecycle
	Supervisor  *prover.Supervisor
	Aggregator  *Aggregator
	Logger      *slog.Logger
	Concurrency int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		workQueue:   cfg.WorkQueue,
		lifecycle:   cfg.Lifecycle,
		supervisor:  cfg.Supervisor,
		aggregator:  cfg.Aggregator,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
		backoffMin:  cfg.BackoffMin,
		backoffMax:  cfg.BackoffMax,
		locks:       newKeyLock(),
		sem:         make(chan struct{}, cfg.Concurrency),
	}
}

// Run consumes until ctx is cancelled, then returns once every in-flight
// job has finished. Jobs started before shutdown run on a detached context
// so cancellation never leaves a half-recorded transition behind.
func (c *Consumer) Run(ctx context.Context) {
	c.logger.Info("Consumer started",
		slog.Int("concurrency", c.concurrency),
	)

	processCtx := context.WithoutCancel(ctx)
	backoff := c.backoffMin

	for {
		if ctx.Err() != nil {
			break
		}

		msgs, err := c.workQueue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				break
			}
			c.logger.Error("Failed to receive messages",
				slog.String("error", err.Error()),
				slog.Duration("backoff", backoff),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			backoff = min(backoff*2, c.backoffMax)
			continue
		}
		backoff = c.backoffMin

		for _, msg := range msgs {
			c.handle(ctx, processCtx, msg)
		}
	}

	c.logger.Info("Consumer stopping - waiting for in-flight jobs")
	c.wg.Wait()
	c.logger.Info("Consumer stopped")
}

// handle parses one delivery and dispatches it. Every message is deleted
// here regardless of what it contains; redelivery of work we already took
// ownership of would only produce duplicate no-ops.
func (c *Consumer) handle(ctx, processCtx context.Context, msg queue.Message) {
	m, err := job.DecodeMessage(msg.Body)
	if err != nil {
		c.logger.Error("Dropping malformed message",
			slog.String("error", err.Error()),
			slog.String("body", string(msg.Body)),
		)
		c.delete(ctx, msg)
		return
	}

	switch m := m.(type) {
	case *job.RequestProof:
		req, err := m.Request()
		if err != nil {
			c.logger.Error("Dropping invalid proof request",
				slog.String("error", err.Error()),
				slog.String("body", string(msg.Body)),
			)
			c.delete(ctx, msg)
			return
		}

		c.delete(ctx, msg)

		select {
		case c.sem <- struct{}{}:
		case <-ctx.Done():
			// Shutdown hit while the pool is full. The message is
			// already deleted, so process anyway; the semaphore
			// slot opens as running jobs drain.
			c.sem <- struct{}{}
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			c.process(processCtx, req, msg.Body)
		}()

	case *job.ProofGenerated:
		// Completion events belong on the results queue; one showing up
		// here means a misconfigured publisher.
		c.logger.Warn("Dropping completion event from work queue",
			slog.String("job_group_id", m.JobGroupID),
		)
		c.delete(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, req job.Request, body []byte) {
	c.locks.Lock(req.JobID)
	defer c.locks.Unlock(req.JobID)

	logger := c.logger.With(
		slog.String("job_id", req.JobID),
		slog.String("job_group_id", req.JobGroupID),
		slog.String("kind", string(req.Kind)),
	)

	rec, err := c.lifecycle.Admit(ctx, req)
	if err != nil {
		if errors.Is(err, job.ErrAlreadyProcessing) {
			logger.Info("Skipping job - claimed by another worker")
			return
		}
		logger.Error("Failed to admit job",
			slog.String("error", err.Error()),
		)
		if job.IsRetryable(err) {
			// The delivery is already gone, so put the request back
			// ourselves or it is lost.
			if sendErr := c.workQueue.Send(ctx, body); sendErr != nil {
				logger.Error("Failed to republish after admission error",
					slog.String("error", sendErr.Error()),
				)
			}
		}
		return
	}
	if rec.Terminal() {
		logger.Info("Dropping duplicate delivery - job already terminal",
			slog.String("status", string(rec.Status)),
		)
		return
	}

	outcome := c.supervisor.Run(ctx, req)

	switch outcome.Kind {
	case prover.OutcomeSuccess:
		if err := c.lifecycle.Complete(ctx, req.JobID, outcome.Artifact); err != nil {
			logger.Error("Failed to record completion",
				slog.String("error", err.Error()),
			)
			return
		}
		c.evaluate(ctx, logger, req.JobGroupID)

	case prover.OutcomeEngineFailure:
		c.finishAttempt(ctx, logger, rec, fmt.Sprintf("proof engine error: %v", outcome.Err))

	case prover.OutcomeTimeout:
		c.finishAttempt(ctx, logger, rec, fmt.Sprintf("proof computation timed out after %s", outcome.Elapsed.Round(time.Millisecond)))
	}
}

func (c *Consumer) finishAttempt(ctx context.Context, logger *slog.Logger, rec *job.Record, cause string) {
	requeued, err := c.lifecycle.FailOrRetry(ctx, rec, cause)
	if err != nil {
		logger.Error("Failed to record attempt outcome",
			slog.String("error", err.Error()),
		)
		return
	}
	if !requeued {
		c.evaluate(ctx, logger, rec.JobGroupID)
	}
}

func (c *Consumer) evaluate(ctx context.Context, logger *slog.Logger, jobGroupID string) {
	if err := c.aggregator.Evaluate(ctx, jobGroupID); err != nil {
		logger.Error("Failed to evaluate job group",
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) delete(ctx context.Context, msg queue.Message) {
	if err := c.workQueue.Delete(ctx, msg); err != nil {
		c.logger.Error("Failed to delete message",
			slog.String("message_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}
}
