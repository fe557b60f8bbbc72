package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/provelab/pricing-prover/internal/api/dto"
)

// CreateAPIKey handles POST /api_key
// Issues a new API key for the given client name.
func (h *APIKeyHandler) CreateAPIKey(c *gin.Context) {
	var req dto.CreateAPIKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "name is required",
		})
		return
	}

	key := uuid.New().String()
	if err := h.store.InsertAPIKey(c.Request.Context(), key, req.Name); err != nil {
		h.logger.Error("Failed to insert api key", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create api key",
		})
		return
	}

	h.logger.Info("API key issued",
		slog.String("name", req.Name),
	)

	c.JSON(http.StatusOK, dto.CreateAPIKeyResponse{
		Name:   req.Name,
		APIKey: key,
	})
}
