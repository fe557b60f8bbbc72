// Package storage owns every durable record the orchestration core relies
// on: job records, group finalization flags, and API credentials.
package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// APIKey is an issued credential. Keys are opaque tokens validated on every
// inbound submission request; revocation is deletion.
type APIKey struct {
	Key       string    `db:"key"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// GroupFinalization is the persisted exactly-once flag for a job group.
type GroupFinalization struct {
	JobGroupID  string    `db:"job_group_id"`
	Succeeded   bool      `db:"succeeded"`
	FinalizedAt time.Time `db:"finalized_at"`
}

// JobCursor is an opaque pagination position over the job listing.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobFilter narrows a job listing.
type JobFilter struct {
	JobGroupID string
	Status     job.Status
	Kind       job.Kind
	PageSize   int
	Cursor     *JobCursor
}

// Store is the persistence boundary consumed by the lifecycle manager, the
// aggregator, the reaper, and the HTTP handlers. Status transitions are
// compare-and-set guarded: a terminal record is never overwritten, and every
// transition method reports whether it actually applied.
type Store interface {
	// GetJob returns the record for jobID, or job.ErrNotFound.
	GetJob(ctx context.Context, jobID string) (*job.Record, error)

	// CreateJob inserts a fresh record with the given status. It reports
	// false without error when the job already exists.
	CreateJob(ctx context.Context, req job.Request, status job.Status) (bool, error)

	// ClaimJob transitions Pending to Processing. When the claim does not
	// apply it returns the current record with claimed=false so the caller
	// can inspect why; job.ErrNotFound when no record exists.
	ClaimJob(ctx context.Context, jobID string) (rec *job.Record, claimed bool, err error)

	// CompleteJob transitions a non-terminal record to Completed with the
	// given result. Reports false when the record was already terminal.
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage) (bool, error)

	// FailJob transitions a non-terminal record to Failed with the error
	// payload as its result. Reports false when already terminal.
	FailJob(ctx context.Context, jobID string, result json.RawMessage) (bool, error)

	// RequeueJob transitions Processing back to Pending and increments the
	// attempt count. Reports false when the record is not Processing.
	RequeueJob(ctx context.Context, jobID string) (bool, error)

	// RequeueStale resets Processing records not updated since cutoff back
	// to Pending and returns them, bounded by limit.
	RequeueStale(ctx context.Context, cutoff time.Time, limit int) ([]job.Record, error)

	// RecoverPending returns Pending records not updated since cutoff,
	// bounded by limit, bumping their updated_at. These are jobs whose
	// queue message was lost; the caller republishes them.
	RecoverPending(ctx context.Context, cutoff time.Time, limit int) ([]job.Record, error)

	// ListByGroup returns every record sharing the group id.
	ListByGroup(ctx context.Context, jobGroupID string) ([]job.Record, error)

	// ListJobs returns records matching the filter, newest first, fetching
	// one extra row past PageSize so callers can detect another page.
	ListJobs(ctx context.Context, filter JobFilter) ([]job.Record, error)

	// FinalizeGroup records the group-completion flag. Reports true only
	// for the single caller that wins the insert.
	FinalizeGroup(ctx context.Context, jobGroupID string, succeeded bool) (bool, error)

	// GetGroupFinalization returns the flag row, or job.ErrNotFound when
	// the group has not finalized.
	GetGroupFinalization(ctx context.Context, jobGroupID string) (*GroupFinalization, error)

	// InsertAPIKey stores a newly issued credential.
	InsertAPIKey(ctx context.Context, key, name string) error

	// FindAPIKey returns the credential, or job.ErrNotFound.
	FindAPIKey(ctx context.Context, key string) (*APIKey, error)
}
