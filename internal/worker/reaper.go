package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

const reaperBatchSize = 100

// Reaper recovers jobs stranded in Processing by a crashed worker. Because
// deliveries are deleted before processing, the record is the only trace of
// such a job; the reaper flips stale records back to Pending and republishes
// them on the work queue.
type Reaper struct {
	store      storage.Store
	workQueue  queue.Queue
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewReaper(store storage.Store, workQueue queue.Queue, logger *slog.Logger, interval, staleAfter time.Duration) *Reaper {
	return &Reaper{
		store:      store,
		workQueue:  workQueue,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	r.logger.Info("Reaper started",
		slog.Duration("interval", r.interval),
		slog.Duration("stale_after", r.staleAfter),
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reaper stopped")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *Reaper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-r.staleAfter)

	stale, err := r.store.RequeueStale(ctx, cutoff, reaperBatchSize)
	if err != nil {
		r.logger.Error("Reaper sweep failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(stale) > 0 {
		r.logger.Warn("Requeued stale jobs",
			slog.Int("count", len(stale)),
		)
		r.republish(ctx, stale)
	}

	// Pending records older than the cutoff lost their message, usually to
	// a publish failure on a previous sweep or retry.
	orphaned, err := r.store.RecoverPending(ctx, cutoff, reaperBatchSize)
	if err != nil {
		r.logger.Error("Reaper recovery failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(orphaned) > 0 {
		r.logger.Warn("Republishing orphaned pending jobs",
			slog.Int("count", len(orphaned)),
		)
		r.republish(ctx, orphaned)
	}
}

func (r *Reaper) republish(ctx context.Context, recs []job.Record) {
	for i := range recs {
		body, err := job.EncodeMessage(job.NewRequestProof(recs[i].Request()))
		if err != nil {
			r.logger.Error("Failed to encode requeued job",
				slog.String("job_id", recs[i].JobID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if err := r.workQueue.Send(ctx, body); err != nil {
			r.logger.Error("Failed to republish requeued job",
				slog.String("job_id", recs[i].JobID),
				slog.String("error", err.Error()),
			)
		}
	}
}
