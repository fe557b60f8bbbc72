package prover

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// HashingEngine derives a deterministic digest over the job identity and its
// time window. It stands in for the real proving backend: same inputs, same
// artifact, so retried deliveries produce identical results.
type HashingEngine struct {
	rounds int
}

func NewHashingEngine() *HashingEngine {
	return &HashingEngine{rounds: 1 << 14}
}

func (e *HashingEngine) Compute(ctx context.Context, req job.Request) (*Artifact, error) {
	seed := fmt.Sprintf("%s|%s|%s|%d|%d",
		req.JobID, req.JobGroupID, req.Kind, req.WindowStart, req.WindowEnd)

	sum := sha256.Sum256([]byte(seed))
	for i := 0; i < e.rounds; i++ {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
		sum = sha256.Sum256(sum[:])
	}

	return &Artifact{
		Digest:         hex.EncodeToString(sum[:]),
		Kind:           req.Kind,
		StartTimestamp: req.WindowStart,
		EndTimestamp:   req.WindowEnd,
		GeneratedAt:    time.Now().UTC(),
	}, nil
}
