package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

func TestReaper_RequeuesStaleProcessing(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	work := queue.NewMemoryQueue()

	req := groupRequest("g1", job.KindTwap)
	_, err := store.CreateJob(ctx, req, job.StatusPending)
	require.NoError(t, err)
	_, _, err = store.ClaimJob(ctx, req.JobID)
	require.NoError(t, err)

	// Zero stale-after treats the claim as immediately stranded
	time.Sleep(5 * time.Millisecond)
	r := NewReaper(store, work, discardLogger(), time.Minute, 0)
	r.sweep(ctx)

	rec, err := store.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, rec.Status)
	assert.Equal(t, 1, rec.AttemptCount)

	msgs, err := work.Receive(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m, err := job.DecodeMessage(msgs[0].Body)
	require.NoError(t, err)
	rp, ok := m.(*job.RequestProof)
	require.True(t, ok)
	got, err := rp.Request()
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestReaper_LeavesFreshJobsAlone(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	work := queue.NewMemoryQueue()

	req := groupRequest("g1", job.KindTwap)
	_, err := store.CreateJob(ctx, req, job.StatusPending)
	require.NoError(t, err)
	_, _, err = store.ClaimJob(ctx, req.JobID)
	require.NoError(t, err)

	r := NewReaper(store, work, discardLogger(), time.Minute, time.Hour)
	r.sweep(ctx)

	rec, err := store.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusProcessing, rec.Status)
	assert.Equal(t, 0, work.Len())
}

func TestReaper_RepublishesOrphanedPending(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	work := queue.NewMemoryQueue()

	// A Pending record with no message on the queue
	req := groupRequest("g1", job.KindReservePrice)
	_, err := store.CreateJob(ctx, req, job.StatusPending)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	r := NewReaper(store, work, discardLogger(), time.Minute, 0)
	r.sweep(ctx)

	assert.Equal(t, 1, work.Len())

	// The bumped record stays Pending with its attempt count untouched
	rec, err := store.GetJob(ctx, req.JobID)
	require.NoError(t, err)
	assert.Equal(t, job.StatusPending, rec.Status)
	assert.Equal(t, 0, rec.AttemptCount)
}
