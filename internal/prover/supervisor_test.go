package prover

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/provelab/pricing-prover/internal/job"
)

func testReq(id string) job.Request {
	return job.Request{
		JobID:       id,
		JobGroupID:  "g1",
		Kind:        job.KindTwap,
		WindowStart: 100,
		WindowEnd:   200,
	}
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisor_Success(t *testing.T) {
	engine := NewMockEngine()
	sup := NewSupervisor(engine, time.Second, discard())

	outcome := sup.Run(context.Background(), testReq("j1"))

	assert.Equal(t, OutcomeSuccess, outcome.Kind)
	require.NotNil(t, outcome.Artifact)
	assert.Equal(t, "mock-j1", outcome.Artifact.Digest)
	assert.Equal(t, job.KindTwap, outcome.Artifact.Kind)
	assert.Nil(t, outcome.Err)
}

func TestSupervisor_EngineFailure(t *testing.T) {
	engine := NewMockEngine()
	engineErr := errors.New("proving backend unavailable")
	engine.FailJob("j1", engineErr)
	sup := NewSupervisor(engine, time.Second, discard())

	outcome := sup.Run(context.Background(), testReq("j1"))

	assert.Equal(t, OutcomeEngineFailure, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, engineErr)
	assert.Nil(t, outcome.Artifact)
}

func TestSupervisor_Timeout(t *testing.T) {
	engine := NewMockEngine()
	engine.HangJob("j1")
	sup := NewSupervisor(engine, 20*time.Millisecond, discard())

	start := time.Now()
	outcome := sup.Run(context.Background(), testReq("j1"))

	assert.Equal(t, OutcomeTimeout, outcome.Kind)
	assert.Nil(t, outcome.Artifact)
	assert.Nil(t, outcome.Err)
	// The caller gets its slot back at the deadline, not when the engine
	// eventually notices.
	assert.Less(t, time.Since(start), time.Second)
}

func TestSupervisor_SlowEngineTimesOut(t *testing.T) {
	engine := NewMockEngine()
	engine.SetDelay(200 * time.Millisecond)
	sup := NewSupervisor(engine, 20*time.Millisecond, discard())

	outcome := sup.Run(context.Background(), testReq("j1"))

	assert.Equal(t, OutcomeTimeout, outcome.Kind)
}

func TestHashingEngine_Deterministic(t *testing.T) {
	engine := NewHashingEngine()
	ctx := context.Background()

	a1, err := engine.Compute(ctx, testReq("j1"))
	require.NoError(t, err)
	a2, err := engine.Compute(ctx, testReq("j1"))
	require.NoError(t, err)

	assert.Equal(t, a1.Digest, a2.Digest)
	assert.Equal(t, int64(100), a1.StartTimestamp)
	assert.Equal(t, int64(200), a1.EndTimestamp)

	other, err := engine.Compute(ctx, testReq("j2"))
	require.NoError(t, err)
	assert.NotEqual(t, a1.Digest, other.Digest)
}

func TestHashingEngine_HonorsCancellation(t *testing.T) {
	engine := NewHashingEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Compute(ctx, testReq("j1"))
	assert.ErrorIs(t, err, context.Canceled)
}
