package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/prover"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

// Lifecycle owns every status transition for a job record. All mutations go
// through the store's compare-and-set operations, so a terminal record is
// never overwritten no matter how often a delivery is replayed.
type Lifecycle struct {
	store       storage.Store
	workQueue   queue.Queue
	logger      *slog.Logger
	maxAttempts int
}

func NewLifecycle(store storage.Store, workQueue queue.Queue, logger *slog.Logger, maxAttempts int) *Lifecycle {
	return &Lifecycle{
		store:       store,
		workQueue:   workQueue,
		logger:      logger,
		maxAttempts: maxAttempts,
	}
}

// Admit registers the job if it is unknown and claims it for processing.
// Callers must inspect the returned record: a terminal record means this
// delivery is a duplicate of finished work and must be dropped.
// job.ErrAlreadyProcessing means another worker holds the claim right now.
func (l *Lifecycle) Admit(ctx context.Context, req job.Request) (*job.Record, error) {
	created, err := l.store.CreateJob(ctx, req, job.StatusPending)
	if err != nil {
		return nil, job.Retryable(fmt.Errorf("failed to register job: %w", err))
	}
	if created {
		l.logger.Info("Job registered",
			slog.String("job_id", req.JobID),
			slog.String("job_group_id", req.JobGroupID),
			slog.String("kind", string(req.Kind)),
		)
	}

	rec, claimed, err := l.store.ClaimJob(ctx, req.JobID)
	if err != nil {
		return nil, job.Retryable(fmt.Errorf("failed to claim job: %w", err))
	}
	if claimed {
		return rec, nil
	}
	if rec.Terminal() {
		return rec, nil
	}
	return rec, job.ErrAlreadyProcessing
}

// Complete records a successful proof artifact. A record that turned
// terminal in the meantime wins; the late completion is logged and dropped.
func (l *Lifecycle) Complete(ctx context.Context, jobID string, artifact *prover.Artifact) error {
	result, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	updated, err := l.store.CompleteJob(ctx, jobID, result)
	if err != nil {
		return job.Retryable(fmt.Errorf("failed to complete job: %w", err))
	}
	if !updated {
		l.logger.Warn("Completion dropped - job already terminal",
			slog.String("job_id", jobID),
		)
		return nil
	}

	l.logger.Info("Job completed",
		slog.String("job_id", jobID),
	)
	return nil
}

// FailOrRetry handles a failed attempt. While attempts remain the record
// goes back to Pending and the request is republished; otherwise it is
// marked Failed with the cause as its result. Reports whether a retry was
// scheduled.
func (l *Lifecycle) FailOrRetry(ctx context.Context, rec *job.Record, cause string) (bool, error) {
	if rec.AttemptCount+1 < l.maxAttempts {
		requeued, err := l.store.RequeueJob(ctx, rec.JobID)
		if err != nil {
			return false, job.Retryable(fmt.Errorf("failed to requeue job: %w", err))
		}
		if !requeued {
			l.logger.Warn("Retry dropped - job no longer processing",
				slog.String("job_id", rec.JobID),
			)
			return false, nil
		}

		body, err := job.EncodeMessage(job.NewRequestProof(rec.Request()))
		if err != nil {
			return false, fmt.Errorf("failed to encode retry message: %w", err)
		}
		if err := l.workQueue.Send(ctx, body); err != nil {
			return false, job.Retryable(fmt.Errorf("failed to republish job: %w", err))
		}

		l.logger.Info("Job requeued for retry",
			slog.String("job_id", rec.JobID),
			slog.Int("attempt", rec.AttemptCount+1),
			slog.String("cause", cause),
		)
		return true, nil
	}

	result, err := json.Marshal(map[string]string{"error": cause})
	if err != nil {
		return false, fmt.Errorf("failed to marshal failure result: %w", err)
	}

	updated, err := l.store.FailJob(ctx, rec.JobID, result)
	if err != nil {
		return false, job.Retryable(fmt.Errorf("failed to fail job: %w", err))
	}
	if !updated {
		l.logger.Warn("Failure dropped - job already terminal",
			slog.String("job_id", rec.JobID),
		)
		return false, nil
	}

	l.logger.Error("Job failed permanently",
		slog.String("job_id", rec.JobID),
		slog.Int("attempts", rec.AttemptCount+1),
		slog.String("cause", cause),
	)
	return false, nil
}
