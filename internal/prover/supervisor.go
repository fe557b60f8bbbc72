package prover

import (
	"context"
	"log/slog"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// OutcomeKind classifies how a supervised computation ended.
type OutcomeKind int

const (
	// OutcomeSuccess: the engine returned an artifact within the deadline.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeEngineFailure: the engine returned an error within the deadline.
	OutcomeEngineFailure
	// OutcomeTimeout: the deadline elapsed before the engine returned.
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeEngineFailure:
		return "engine_failure"
	case OutcomeTimeout:
		return "timeout"
	}
	return "unknown"
}

// Outcome is the supervisor's verdict on one computation. Exactly one of
// Artifact or Err is set for success and engine failure; both are nil for a
// timeout.
type Outcome struct {
	Kind     OutcomeKind
	Artifact *Artifact
	Err      error
	Elapsed  time.Duration
}

// Supervisor wraps an Engine with a hard per-job deadline. A computation
// that overruns is abandoned: its goroutine keeps the cancelled context and
// drains into a buffered channel, so the worker slot frees immediately.
type Supervisor struct {
	engine  Engine
	timeout time.Duration
	logger  *slog.Logger
}

func NewSupervisor(engine Engine, timeout time.Duration, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		engine:  engine,
		timeout: timeout,
		logger:  logger,
	}
}

type computeResult struct {
	artifact *Artifact
	err      error
}

// Run executes one computation under the deadline and classifies the result.
// The ctx passed in bounds the overall attempt; the per-job timeout is
// layered on top of it.
func (s *Supervisor) Run(ctx context.Context, req job.Request) Outcome {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan computeResult, 1)
	go func() {
		artifact, err := s.engine.Compute(runCtx, req)
		done <- computeResult{artifact: artifact, err: err}
	}()

	select {
	case res := <-done:
		elapsed := time.Since(start)
		if res.err != nil {
			// An engine error after the deadline fired is still a
			// timeout from the caller's point of view.
			if runCtx.Err() == context.DeadlineExceeded {
				return Outcome{Kind: OutcomeTimeout, Elapsed: elapsed}
			}
			return Outcome{Kind: OutcomeEngineFailure, Err: res.err, Elapsed: elapsed}
		}
		return Outcome{Kind: OutcomeSuccess, Artifact: res.artifact, Elapsed: elapsed}

	case <-runCtx.Done():
		elapsed := time.Since(start)
		s.logger.Warn("Proof computation abandoned",
			slog.String("job_id", req.JobID),
			slog.Duration("elapsed", elapsed),
		)
		if ctx.Err() != nil && runCtx.Err() != context.DeadlineExceeded {
			return Outcome{Kind: OutcomeEngineFailure, Err: ctx.Err(), Elapsed: elapsed}
		}
		return Outcome{Kind: OutcomeTimeout, Elapsed: elapsed}
	}
}
