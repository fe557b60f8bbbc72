package worker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

func seedGroup(t *testing.T, store storage.Store, groupID string, statuses map[job.Kind]job.Status) {
	t.Helper()
	ctx := context.Background()

	for kind, status := range statuses {
		req := job.Request{
			JobID:       groupID + ":" + string(kind),
			JobGroupID:  groupID,
			Kind:        kind,
			WindowStart: 100,
			WindowEnd:   200,
		}
		_, err := store.CreateJob(ctx, req, job.StatusPending)
		require.NoError(t, err)

		if status == job.StatusPending {
			continue
		}
		_, _, err = store.ClaimJob(ctx, req.JobID)
		require.NoError(t, err)

		switch status {
		case job.StatusCompleted:
			_, err = store.CompleteJob(ctx, req.JobID, json.RawMessage(`{"digest":"`+string(kind)+`"}`))
			require.NoError(t, err)
		case job.StatusFailed:
			_, err = store.FailJob(ctx, req.JobID, json.RawMessage(`{"error":"boom"}`))
			require.NoError(t, err)
		}
	}
}

func TestAggregator_PublishesOnceWhenAllComplete(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	results := queue.NewMemoryQueue()
	agg := NewAggregator(store, results, discardLogger())

	seedGroup(t, store, "g1", map[job.Kind]job.Status{
		job.KindTwap:         job.StatusCompleted,
		job.KindReservePrice: job.StatusCompleted,
		job.KindMaxReturn:    job.StatusCompleted,
	})

	require.NoError(t, agg.Evaluate(ctx, "g1"))

	msgs, err := results.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m, err := job.DecodeMessage(msgs[0].Body)
	require.NoError(t, err)
	pg, ok := m.(*job.ProofGenerated)
	require.True(t, ok)
	assert.Equal(t, "g1", pg.JobGroupID)
	assert.Len(t, pg.Results, 3)
	assert.JSONEq(t, `{"digest":"twap"}`, string(pg.Results[job.KindTwap]))

	// Re-evaluation after finalization publishes nothing more
	require.NoError(t, agg.Evaluate(ctx, "g1"))
	assert.Equal(t, 1, results.Len())
}

func TestAggregator_NoEventWhileIncomplete(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	results := queue.NewMemoryQueue()
	agg := NewAggregator(store, results, discardLogger())

	seedGroup(t, store, "g1", map[job.Kind]job.Status{
		job.KindTwap:         job.StatusCompleted,
		job.KindReservePrice: job.StatusCompleted,
		job.KindMaxReturn:    job.StatusPending,
	})

	require.NoError(t, agg.Evaluate(ctx, "g1"))
	assert.Equal(t, 0, results.Len())

	_, err := store.GetGroupFinalization(ctx, "g1")
	assert.ErrorIs(t, err, job.ErrNotFound)
}

func TestAggregator_FailedGroupFinalizesWithoutEvent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	results := queue.NewMemoryQueue()
	agg := NewAggregator(store, results, discardLogger())

	seedGroup(t, store, "g1", map[job.Kind]job.Status{
		job.KindTwap:         job.StatusCompleted,
		job.KindReservePrice: job.StatusFailed,
		job.KindMaxReturn:    job.StatusCompleted,
	})

	require.NoError(t, agg.Evaluate(ctx, "g1"))
	assert.Equal(t, 0, results.Len())

	fin, err := store.GetGroupFinalization(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, fin.Succeeded)
}

func TestAggregator_EmptyGroup(t *testing.T) {
	store := storage.NewMemoryStore()
	results := queue.NewMemoryQueue()
	agg := NewAggregator(store, results, discardLogger())

	require.NoError(t, agg.Evaluate(context.Background(), "missing"))
	assert.Equal(t, 0, results.Len())
}
