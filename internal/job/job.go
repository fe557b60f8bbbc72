package job

import (
	"encoding/json"
	"time"
)

// Kind discriminates the pricing computation a sub-job carries out.
type Kind string

const (
	KindTwap         Kind = "twap"
	KindReservePrice Kind = "reserve_price"
	KindMaxReturn    Kind = "max_return"
)

// Kinds lists every sub-job kind dispatched for one pricing request.
var Kinds = []Kind{KindTwap, KindReservePrice, KindMaxReturn}

// Valid reports whether k is one of the known job kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindTwap, KindReservePrice, KindMaxReturn:
		return true
	}
	return false
}

// Status is the lifecycle state of a job record.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
)

// Terminal reports whether s is a final state that must never be overwritten.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Request is the immutable description of one unit of proof work.
type Request struct {
	JobID       string
	JobGroupID  string
	Kind        Kind
	WindowStart int64
	WindowEnd   int64
}

// Record is the persisted tracking entity for a job, keyed by JobID.
// Mutated exclusively by the lifecycle manager.
type Record struct {
	JobID        string          `db:"job_id"`
	JobGroupID   string          `db:"job_group_id"`
	Kind         Kind            `db:"kind"`
	WindowStart  int64           `db:"window_start"`
	WindowEnd    int64           `db:"window_end"`
	Status       Status          `db:"status"`
	Result       json.RawMessage `db:"result"`
	AttemptCount int             `db:"attempt_count"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// Terminal reports whether the record has reached a final state.
func (r *Record) Terminal() bool {
	return r.Status.Terminal()
}

// Request rebuilds the original work description from the persisted record,
// so a retry or the reaper can re-enqueue it without the original message.
func (r *Record) Request() Request {
	return Request{
		JobID:       r.JobID,
		JobGroupID:  r.JobGroupID,
		Kind:        r.Kind,
		WindowStart: r.WindowStart,
		WindowEnd:   r.WindowEnd,
	}
}

// GroupComplete reports whether every member record is terminal.
func GroupComplete(members []Record) bool {
	if len(members) == 0 {
		return false
	}
	for i := range members {
		if !members[i].Terminal() {
			return false
		}
	}
	return true
}

// GroupSucceeded reports whether every member record completed successfully.
// Only meaningful once GroupComplete holds.
func GroupSucceeded(members []Record) bool {
	for i := range members {
		if members[i].Status != StatusCompleted {
			return false
		}
	}
	return len(members) > 0
}
