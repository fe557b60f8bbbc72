package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/provelab/pricing-prover/internal/api/dto"
	"github.com/provelab/pricing-prover/internal/job"
	"github.com/provelab/pricing-prover/internal/storage"
)

// DispatchJob handles POST /api/job
// Dispatches a proof job group with explicit per-metric windows.
func (h *JobHandler) DispatchJob(c *gin.Context) {
	var req dto.DispatchJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.JobResponse{
			Message: "Invalid request body",
		})
		return
	}

	windows := map[job.Kind]dto.TimeRange{
		job.KindTwap:         req.Twap,
		job.KindReservePrice: req.ReservePrice,
		job.KindMaxReturn:    req.MaxReturn,
	}
	for kind, window := range windows {
		if err := validateWindow(kind, window.StartTimestamp, window.EndTimestamp); err != nil {
			c.JSON(http.StatusBadRequest, dto.JobResponse{
				Message: err.Error(),
			})
			return
		}
	}

	jobGroupID := req.JobGroupID
	if jobGroupID == "" {
		jobGroupID = uuid.New().String()
	}

	errs := h.dispatch(c.Request.Context(), jobGroupID, windows)
	if len(errs) > 0 {
		c.JSON(http.StatusOK, dto.JobResponse{
			Status:     "error",
			Message:    errors.Join(errs...).Error(),
			JobGroupID: jobGroupID,
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		Status:     "success",
		Message:    "Pricing proof jobs dispatched.",
		JobGroupID: jobGroupID,
	})
}

// GetJobGroup handles GET /api/job/:job_group_id
// Returns per-sub-job status plus a group rollup.
func (h *JobHandler) GetJobGroup(c *gin.Context) {
	jobGroupID := c.Param("job_group_id")

	members, err := h.store.ListByGroup(c.Request.Context(), jobGroupID)
	if err != nil {
		h.logger.Error("Failed to list group jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job group",
		})
		return
	}
	if len(members) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job group not found",
		})
		return
	}

	c.JSON(http.StatusOK, dto.GroupStatusResponse{
		JobGroupID: jobGroupID,
		Status:     string(groupStatus(members)),
		Jobs:       toJobDTOs(members),
	})
}

// ListJobs handles GET /api/jobs
// Lists job records with optional filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.JobFilter{
		JobGroupID: req.JobGroupID,
		Status:     job.Status(req.Status),
		Kind:       job.Kind(req.Kind),
		PageSize:   req.PageSize,
		Cursor:     cursor,
	}

	records, err := h.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(records) > req.PageSize
	if hasMore {
		records = records[:req.PageSize]
	}

	var nextCursor string
	if hasMore {
		last := records[len(records)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:       toJobDTOs(records),
		NextCursor: nextCursor,
	})
}

// groupStatus rolls member statuses up to one value: Failed or Completed
// once every member is terminal, Processing while any member is running,
// Pending otherwise.
func groupStatus(members []job.Record) job.Status {
	if job.GroupComplete(members) {
		if job.GroupSucceeded(members) {
			return job.StatusCompleted
		}
		return job.StatusFailed
	}
	for i := range members {
		if members[i].Status == job.StatusProcessing {
			return job.StatusProcessing
		}
	}
	for i := range members {
		if members[i].Terminal() {
			// Mixed terminal and pending still counts as in flight.
			return job.StatusProcessing
		}
	}
	return job.StatusPending
}

func toJobDTOs(records []job.Record) []dto.JobDTO {
	out := make([]dto.JobDTO, len(records))
	for i, rec := range records {
		out[i] = dto.JobDTO{
			JobID:        rec.JobID,
			JobGroupID:   rec.JobGroupID,
			Kind:         string(rec.Kind),
			WindowStart:  rec.WindowStart,
			WindowEnd:    rec.WindowEnd,
			Status:       string(rec.Status),
			Result:       rec.Result,
			AttemptCount: rec.AttemptCount,
			CreatedAt:    rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt:    rec.UpdatedAt.Format(time.RFC3339),
		}
	}
	return out
}
