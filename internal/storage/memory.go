package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/provelab/pricing-prover/internal/job"
)

// MemoryStore is an in-memory Store with the same transition guards as the
// Postgres implementation. It backs tests and local development.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   map[string]*job.Record
	groups map[string]*GroupFinalization
	keys   map[string]*APIKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:   make(map[string]*job.Record),
		groups: make(map[string]*GroupFinalization),
		keys:   make(map[string]*APIKey),
	}
}

func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, job.ErrNotFound
	}
	return copyRecord(rec), nil
}

func (s *MemoryStore) CreateJob(_ context.Context, req job.Request, status job.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[req.JobID]; ok {
		return false, nil
	}

	now := time.Now()
	s.jobs[req.JobID] = &job.Record{
		JobID:       req.JobID,
		JobGroupID:  req.JobGroupID,
		Kind:        req.Kind,
		WindowStart: req.WindowStart,
		WindowEnd:   req.WindowEnd,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return true, nil
}

func (s *MemoryStore) ClaimJob(_ context.Context, jobID string) (*job.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok {
		return nil, false, job.ErrNotFound
	}
	if rec.Status != job.StatusPending {
		return copyRecord(rec), false, nil
	}

	rec.Status = job.StatusProcessing
	rec.UpdatedAt = time.Now()
	return copyRecord(rec), true, nil
}

func (s *MemoryStore) CompleteJob(_ context.Context, jobID string, result json.RawMessage) (bool, error) {
	return s.finishJob(jobID, job.StatusCompleted, result)
}

func (s *MemoryStore) FailJob(_ context.Context, jobID string, result json.RawMessage) (bool, error) {
	return s.finishJob(jobID, job.StatusFailed, result)
}

func (s *MemoryStore) finishJob(jobID string, status job.Status, result json.RawMessage) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok || rec.Terminal() {
		return false, nil
	}

	rec.Status = status
	rec.Result = append(json.RawMessage(nil), result...)
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) RequeueJob(_ context.Context, jobID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[jobID]
	if !ok || rec.Status != job.StatusProcessing {
		return false, nil
	}

	rec.Status = job.StatusPending
	rec.AttemptCount++
	rec.UpdatedAt = time.Now()
	return true, nil
}

func (s *MemoryStore) RequeueStale(_ context.Context, cutoff time.Time, limit int) ([]job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*job.Record
	for _, rec := range s.jobs {
		if rec.Status == job.StatusProcessing && rec.UpdatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}

	out := make([]job.Record, 0, len(stale))
	for _, rec := range stale {
		rec.Status = job.StatusPending
		rec.AttemptCount++
		rec.UpdatedAt = time.Now()
		out = append(out, *copyRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) RecoverPending(_ context.Context, cutoff time.Time, limit int) ([]job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stale []*job.Record
	for _, rec := range s.jobs {
		if rec.Status == job.StatusPending && rec.UpdatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].UpdatedAt.Before(stale[j].UpdatedAt)
	})
	if len(stale) > limit {
		stale = stale[:limit]
	}

	out := make([]job.Record, 0, len(stale))
	for _, rec := range stale {
		rec.UpdatedAt = time.Now()
		out = append(out, *copyRecord(rec))
	}
	return out, nil
}

func (s *MemoryStore) ListByGroup(_ context.Context, jobGroupID string) ([]job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []job.Record
	for _, rec := range s.jobs {
		if rec.JobGroupID == jobGroupID {
			recs = append(recs, *copyRecord(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.Before(recs[j].CreatedAt)
		}
		return recs[i].JobID < recs[j].JobID
	})
	return recs, nil
}

func (s *MemoryStore) ListJobs(_ context.Context, filter JobFilter) ([]job.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []job.Record
	for _, rec := range s.jobs {
		if filter.JobGroupID != "" && rec.JobGroupID != filter.JobGroupID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.Kind != "" && rec.Kind != filter.Kind {
			continue
		}
		if filter.Cursor != nil {
			if rec.CreatedAt.After(filter.Cursor.CreatedAt) {
				continue
			}
			if rec.CreatedAt.Equal(filter.Cursor.CreatedAt) && rec.JobID >= filter.Cursor.JobID {
				continue
			}
		}
		recs = append(recs, *copyRecord(rec))
	}

	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].JobID > recs[j].JobID
	})
	if len(recs) > filter.PageSize+1 {
		recs = recs[:filter.PageSize+1]
	}
	return recs, nil
}

func (s *MemoryStore) FinalizeGroup(_ context.Context, jobGroupID string, succeeded bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.groups[jobGroupID]; ok {
		return false, nil
	}
	s.groups[jobGroupID] = &GroupFinalization{
		JobGroupID:  jobGroupID,
		Succeeded:   succeeded,
		FinalizedAt: time.Now(),
	}
	return true, nil
}

func (s *MemoryStore) GetGroupFinalization(_ context.Context, jobGroupID string) (*GroupFinalization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fin, ok := s.groups[jobGroupID]
	if !ok {
		return nil, job.ErrNotFound
	}
	out := *fin
	return &out, nil
}

func (s *MemoryStore) InsertAPIKey(_ context.Context, key, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = &APIKey{Key: key, Name: name, CreatedAt: time.Now()}
	return nil
}

func (s *MemoryStore) FindAPIKey(_ context.Context, key string) (*APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ak, ok := s.keys[key]
	if !ok {
		return nil, job.ErrNotFound
	}
	out := *ak
	return &out, nil
}

func copyRecord(rec *job.Record) *job.Record {
	out := *rec
	out.Result = append(json.RawMessage(nil), rec.Result...)
	return &out
}
