package ops

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Logger))
	r.Use(corsHeaders())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "jobsync-agent",
		})
	})

	h := NewHandler(deps)

	api := r.Group("/api")
	{
		api.GET("/dashboard", h.Dashboard)

		jobs := api.Group("/jobs")
		{
			jobs.GET("/available", h.AvailableJobs)
			jobs.GET("/:job_id", h.GetJob)
			jobs.POST("/:job_id/apply", h.Apply)
			jobs.POST("/:job_id/accept-worker/:application_id", h.AcceptWorker)
			jobs.POST("/:job_id/start-route", h.StartRoute)
			jobs.POST("/:job_id/confirm-arrival", h.ConfirmArrival)
			jobs.POST("/:job_id/start-service", h.StartService)
			jobs.POST("/:job_id/add-extra", h.AddExtra)
			jobs.POST("/:job_id/complete", h.Complete)
			jobs.POST("/:job_id/rate", h.Rate)
			jobs.POST("/:job_id/cancel", h.Cancel)
		}

		chat := api.Group("/chat")
		{
			chat.POST("/:job_id/open", h.OpenChat)
			chat.GET("/:job_id", h.ChatSnapshot)
			chat.POST("/:job_id/send", h.SendChatMessage)
			chat.POST("/:job_id/resend/:local_id", h.ResendChatMessage)
			chat.DELETE("/:job_id", h.CloseChat)
		}
	}

	return r
}
