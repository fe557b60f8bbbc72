package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/provelab/pricing-prover/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "pricing-prover-api",
		})
	})

	jobHandler := handler.NewJobHandler(deps)
	apiKeyHandler := handler.NewAPIKeyHandler(deps)

	// Authenticated submission endpoint
	r.POST("/pricing_data",
		APIKeyAuthMiddleware(deps.Store, deps.Logger),
		jobHandler.PostPricingData,
	)

	// Key issuance
	r.POST("/api_key", apiKeyHandler.CreateAPIKey)

	api := r.Group("/api")
	{
		// POST /api/job - Dispatch a proof job group
		api.POST("/job", jobHandler.DispatchJob)

		// GET /api/job/:job_group_id - Group status with per-job detail
		api.GET("/job/:job_group_id", jobHandler.GetJobGroup)

		// GET /api/jobs - List jobs with filtering and pagination
		api.GET("/jobs", jobHandler.ListJobs)
	}

	return r
}
