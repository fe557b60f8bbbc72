package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

// Aggregator watches job groups and publishes a single ProofGenerated event
// once every member has reached a terminal state. The finalization flag in
// the store arbitrates concurrent evaluations: only the worker that wins the
// flag insert publishes.
type Aggregator struct {
	store        storage.Store
	resultsQueue queue.Queue
	logger       *slog.Logger
}

func NewAggregator(store storage.Store, resultsQueue queue.Queue, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		store:        store,
		resultsQueue: resultsQueue,
		logger:       logger,
	}
}

// Evaluate checks whether the group finished and, if this call wins
// finalization, emits the completion event. Safe to call after every
// terminal transition; losing callers return without side effects.
func (a *Aggregator) Evaluate(ctx context.Context, jobGroupID string) error {
	members, err := a.store.ListByGroup(ctx, jobGroupID)
	if err != nil {
		return fmt.Errorf("failed to list group members: %w", err)
	}

	if !job.GroupComplete(members) {
		return nil
	}
	succeeded := job.GroupSucceeded(members)

	won, err := a.store.FinalizeGroup(ctx, jobGroupID, succeeded)
	if err != nil {
		return fmt.Errorf("failed to finalize group: %w", err)
	}
	if !won {
		return nil
	}

	if !succeeded {
		a.logger.Error("Job group finalized with failures - no event published",
			slog.String("job_group_id", jobGroupID),
			slog.Int("members", len(members)),
		)
		return nil
	}

	results := make(map[job.Kind]json.RawMessage, len(members))
	for i := range members {
		results[members[i].Kind] = members[i].Result
	}

	body, err := job.EncodeMessage(&job.ProofGenerated{
		JobGroupID: jobGroupID,
		Results:    results,
	})
	if err != nil {
		return fmt.Errorf("failed to encode completion event: %w", err)
	}

	if err := a.resultsQueue.Send(ctx, body); err != nil {
		return fmt.Errorf("failed to publish completion event: %w", err)
	}

	a.logger.Info("Job group completed - event published",
		slog.String("job_group_id", jobGroupID),
		slog.Int("members", len(members)),
	)
	return nil
}
