package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/shared/postgresql"
)

const jobColumns = `
	job_id, job_group_id, kind, window_start, window_end,
	status, result, attempt_count, created_at, updated_at`

// PostgresStore is the production Store backed by Postgres. Every status
// transition is a single guarded UPDATE so concurrent workers race safely on
// the row itself rather than on application locks.
type PostgresStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgresStore(pg *postgresql.Client, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:     pg.GetDB(),
		logger: logger,
	}
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_requests
		WHERE job_id = $1
	`

	var rec job.Record
	err := s.db.GetContext(ctx, &rec, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &rec, nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, req job.Request, status job.Status) (bool, error) {
	query := `
		INSERT INTO job_requests (
			job_id, job_group_id, kind, window_start, window_end,
			status, attempt_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, 0, NOW(), NOW()
		)
		ON CONFLICT (job_id) DO NOTHING
	`

	result, err := s.db.ExecContext(ctx, query,
		req.JobID, req.JobGroupID, req.Kind, req.WindowStart, req.WindowEnd, status)
	if err != nil {
		return false, fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context, jobID string) (*job.Record, bool, error) {
	query := `
		UPDATE job_requests
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns

	var rec job.Record
	err := s.db.GetContext(ctx, &rec, query, job.StatusProcessing, jobID, job.StatusPending)
	if err == nil {
		return &rec, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim job: %w", err)
	}

	// Claim missed: return the current row so the caller can tell a
	// concurrent claim from a terminal record.
	current, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, false, err
	}

	s.logger.Warn("Failed to claim job - not in pending state",
		slog.String("job_id", jobID),
		slog.String("status", string(current.Status)),
	)

	return current, false, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage) (bool, error) {
	return s.finishJob(ctx, jobID, job.StatusCompleted, result)
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, result json.RawMessage) (bool, error) {
	return s.finishJob(ctx, jobID, job.StatusFailed, result)
}

func (s *PostgresStore) finishJob(ctx context.Context, jobID string, status job.Status, result json.RawMessage) (bool, error) {
	query := `
		UPDATE job_requests
		SET status = $1,
		    result = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status NOT IN ($4, $5)
	`

	res, err := s.db.ExecContext(ctx, query,
		status, []byte(result), jobID, job.StatusCompleted, job.StatusFailed)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE job_requests
		SET status = $1,
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	res, err := s.db.ExecContext(ctx, query, job.StatusPending, jobID, job.StatusProcessing)
	if err != nil {
		return false, fmt.Errorf("failed to requeue job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

func (s *PostgresStore) RequeueStale(ctx context.Context, cutoff time.Time, limit int) ([]job.Record, error) {
	query := `
		UPDATE job_requests
		SET status = $1,
		    attempt_count = attempt_count + 1,
		    updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id
			FROM job_requests
			WHERE status = $2
			  AND updated_at < $3
			ORDER BY updated_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var recs []job.Record
	err := s.db.SelectContext(ctx, &recs, query, job.StatusPending, job.StatusProcessing, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to requeue stale jobs: %w", err)
	}

	return recs, nil
}

func (s *PostgresStore) RecoverPending(ctx context.Context, cutoff time.Time, limit int) ([]job.Record, error) {
	query := `
		UPDATE job_requests
		SET updated_at = NOW()
		WHERE job_id IN (
			SELECT job_id
			FROM job_requests
			WHERE status = $1
			  AND updated_at < $2
			ORDER BY updated_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	var recs []job.Record
	err := s.db.SelectContext(ctx, &recs, query, job.StatusPending, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to recover pending jobs: %w", err)
	}

	return recs, nil
}

func (s *PostgresStore) ListByGroup(ctx context.Context, jobGroupID string) ([]job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_requests
		WHERE job_group_id = $1
		ORDER BY created_at ASC, job_id ASC
	`

	var recs []job.Record
	err := s.db.SelectContext(ctx, &recs, query, jobGroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group jobs: %w", err)
	}

	return recs, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]job.Record, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM job_requests
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.JobGroupID != "" {
		query += fmt.Sprintf(" AND job_group_id = $%d", argIdx)
		args = append(args, filter.JobGroupID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, filter.Kind)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	// Order by created_at DESC, job_id DESC for consistent pagination
	query += " ORDER BY created_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var recs []job.Record
	err := s.db.SelectContext(ctx, &recs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return recs, nil
}

func (s *PostgresStore) FinalizeGroup(ctx context.Context, jobGroupID string, succeeded bool) (bool, error) {
	query := `
		INSERT INTO job_groups (job_group_id, succeeded, finalized_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_group_id) DO NOTHING
	`

	res, err := s.db.ExecContext(ctx, query, jobGroupID, succeeded)
	if err != nil {
		return false, fmt.Errorf("failed to finalize group: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows == 1, nil
}

func (s *PostgresStore) GetGroupFinalization(ctx context.Context, jobGroupID string) (*GroupFinalization, error) {
	query := `
		SELECT job_group_id, succeeded, finalized_at
		FROM job_groups
		WHERE job_group_id = $1
	`

	var fin GroupFinalization
	err := s.db.GetContext(ctx, &fin, query, jobGroupID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group finalization: %w", err)
	}

	return &fin, nil
}

func (s *PostgresStore) InsertAPIKey(ctx context.Context, key, name string) error {
	query := `
		INSERT INTO api_keys (key, name, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.ExecContext(ctx, query, key, name)
	if err != nil {
		return fmt.Errorf("failed to insert api key: %w", err)
	}

	return nil
}

func (s *PostgresStore) FindAPIKey(ctx context.Context, key string) (*APIKey, error) {
	query := `
		SELECT key, name, created_at
		FROM api_keys
		WHERE key = $1
	`

	var ak APIKey
	err := s.db.GetContext(ctx, &ak, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, job.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}

	return &ak, nil
}
