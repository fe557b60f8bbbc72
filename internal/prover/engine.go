// Package prover runs the pricing proof computation and bounds it with a
// hard timeout so a wedged engine can never stall the worker pool.
package prover

import (
	"context"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// Artifact is the output of one successful proof computation, persisted as
// the job result and carried in the group completion event.
type Artifact struct {
	Digest         string    `json:"digest"`
	Kind           job.Kind  `json:"kind"`
	StartTimestamp int64     `json:"start_timestamp"`
	EndTimestamp   int64     `json:"end_timestamp"`
	GeneratedAt    time.Time `json:"generated_at"`
}

// Engine computes a proof artifact for one job request. Implementations must
// honor ctx cancellation on a best-effort basis; the supervisor enforces the
// deadline regardless.
type Engine interface {
	Compute(ctx context.Context, req job.Request) (*Artifact, error)
}
