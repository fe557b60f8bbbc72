package handler

import (
	"log/slog"

	"github.com/provelab/pricing-prover/internal/queue"
	"github.com/provelab/pricing-prover/internal/storage"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Store     storage.Store
	WorkQueue queue.Queue
}

// JobHandler handles job submission and status HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	store     storage.Store
	workQueue queue.Queue
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		store:     deps.Store,
		workQueue: deps.WorkQueue,
	}
}

// APIKeyHandler handles API key issuance
type APIKeyHandler struct {
	logger *slog.Logger
	store  storage.Store
}

func NewAPIKeyHandler(deps *Dependencies) *APIKeyHandler {
	return &APIKeyHandler{
		logger: deps.Logger,
		store:  deps.Store,
	}
}
