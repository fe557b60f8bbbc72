package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/provelab/pricing-prover/internal/api/dto"
	"github.com/provelab/pricing-prover/internal/job"
)

// PostPricingData handles POST /pricing_data
// Accepts a pricing request and fans it out into one sub-job per metric.
func (h *JobHandler) PostPricingData(c *gin.Context) {
	var req dto.PricingDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, dto.JobResponse{
			Message: "Invalid request body",
		})
		return
	}

	if len(req.Identifiers) == 0 {
		c.JSON(http.StatusBadRequest, dto.JobResponse{
			Message: "Identifiers cannot be empty.",
		})
		return
	}

	windows := map[job.Kind]dto.TimeRange{
		job.KindTwap:         {StartTimestamp: req.Params.Twap[0], EndTimestamp: req.Params.Twap[1]},
		job.KindReservePrice: {StartTimestamp: req.Params.ReservePrice[0], EndTimestamp: req.Params.ReservePrice[1]},
		job.KindMaxReturn:    {StartTimestamp: req.Params.Volatility[0], EndTimestamp: req.Params.Volatility[1]},
	}
	for kind, window := range windows {
		if err := validateWindow(kind, window.StartTimestamp, window.EndTimestamp); err != nil {
			c.JSON(http.StatusBadRequest, dto.JobResponse{
				Message: err.Error(),
			})
			return
		}
	}

	jobGroupID := uuid.New().String()

	h.logger.Info("Received pricing data request",
		slog.String("job_group_id", jobGroupID),
		slog.Any("identifiers", req.Identifiers),
		slog.String("client_address", req.ClientInfo.ClientAddress),
		slog.String("vault_address", req.ClientInfo.VaultAddress),
	)

	// Partial dispatch failures are reported in the body, not as an HTTP
	// error: the group exists and the reaper recovers undelivered jobs.
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
