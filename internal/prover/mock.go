package prover

import (
	"context"
	"sync"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// MockEngine is a scriptable Engine for tests and local runs. Outcomes are
// keyed by job id; unscripted jobs succeed with a fixed digest.
type MockEngine struct {
	mu       sync.Mutex
	delay    time.Duration
	failures map[string]error
	hangs    map[string]bool
	calls    []string
}

func NewMockEngine() *MockEngine {
	return &MockEngine{
		failures: make(map[string]error),
		hangs:    make(map[string]bool),
	}
}

// SetDelay makes every computation take at least d.
func (e *MockEngine) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// FailJob scripts jobID to return err.
func (e *MockEngine) FailJob(jobID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[jobID] = err
}

// HangJob scripts jobID to block until ctx is cancelled.
func (e *MockEngine) HangJob(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hangs[jobID] = true
}

// Calls returns the job ids computed so far, in call order.
func (e *MockEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *MockEngine) Compute(ctx context.Context, req job.Request) (*Artifact, error) {
	e.mu.Lock()
	e.calls = append(e.calls, req.JobID)
	delay := e.delay
	failErr := e.failures[req.JobID]
	hang := e.hangs[req.JobID]
	e.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failErr != nil {
		return nil, failErr
	}

	return &Artifact{
		Digest:         "mock-" + req.JobID,
		Kind:           req.Kind,
		StartTimestamp: req.WindowStart,
		EndTimestamp:   req.WindowEnd,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}
