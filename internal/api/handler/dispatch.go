package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/provelab/pricing-prover/internal/api/dto"
	"github.com/provelab/pricing-prover/internal/job"
)

// dispatch registers one Pending record per sub-job kind and publishes the
// matching proof requests. Job ids are derived from the group id, so
// resubmitting a group is idempotent at the record level; the worker drops
// replayed messages for finished jobs on its own.
func (h *JobHandler) dispatch(ctx context.Context, jobGroupID string, windows map[job.Kind]dto.TimeRange) []error {
	var errs []error

	for _, kind := range job.Kinds {
		window, ok := windows[kind]
		if !ok {
			continue
		}

		req := job.Request{
			JobID:       fmt.Sprintf("%s:%s", jobGroupID, kind),
			JobGroupID:  jobGroupID,
			Kind:        kind,
			WindowStart: window.StartTimestamp,
			WindowEnd:   window.EndTimestamp,
		}

		created, err := h.store.CreateJob(ctx, req, job.StatusPending)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to register job: %w", kind, err))
			continue
		}
		if !created {
			h.logger.Info("Job already registered - republishing",
				slog.String("job_id", req.JobID),
			)
		}

		body, err := job.EncodeMessage(job.NewRequestProof(req))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to encode message: %w", kind, err))
			continue
		}
		if err := h.workQueue.Send(ctx, body); err != nil {
			errs = append(errs, fmt.Errorf("%s: failed to publish message: %w", kind, err))
			continue
		}

		h.logger.Info("Job dispatched",
			slog.String("job_id", req.JobID),
			slog.String("job_group_id", jobGroupID),
			slog.String("kind", string(kind)),
		)
	}

	return errs
}

func validateWindow(kind job.Kind, start, end int64) error {
	if start >= end {
		return fmt.Errorf("invalid %s range: start %d must be before end %d", kind, start, end)
	}
	return nil
}
