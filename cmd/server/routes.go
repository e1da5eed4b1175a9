package main

import (
	"github.com/gigflow/backend/internal/metrics"
	"github.com/gigflow/backend/internal/middleware"
	"github.com/gigflow/backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.corsOrigins))

	r.GET("/health", svc.healthHandler.CheckHealth)
	r.GET("/metrics", metrics.Handler())

	// API routes
	api := r.Group("/api", middleware.AccessLog())
	{
		// Auth routes (public, limited per client IP)
		auth := api.Group("/auth", svc.rateLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
		}

		// Protected routes, limited per user
		protected := api.Group("")
		protected.Use(
			middleware.AuthRequired(),
			middleware.ActiveAccount(svc.engine),
			svc.rateLimiter.Middleware(),
		)
		{
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)

			protected.GET("/dashboard/stats", svc.dashboardHandler.GetStats)

			// Event stream
			protected.GET("/events", svc.sseHandler.Stream)

			projects := protected.Group("/projects")
			{
				projects.GET("", svc.projectHandler.List)
				projects.POST("", svc.projectHandler.Create)
				projects.GET("/:id", svc.projectHandler.GetByID)
				projects.PUT("/:id/status", svc.projectHandler.UpdateStatus)
				projects.POST("/:id/proposals", svc.projectHandler.SubmitProposal)
				projects.GET("/:id/files", svc.fileHandler.List)
				projects.POST("/:id/files", svc.fileHandler.Upload)
			}

			proposals := protected.Group("/proposals")
			{
				proposals.GET("", svc.proposalHandler.List)
				proposals.GET("/:id", svc.proposalHandler.GetByID)
				proposals.PUT("/:id/status", svc.proposalHandler.UpdateStatus)
				proposals.POST("/:id/accept", svc.proposalHandler.Accept)
				proposals.POST("/:id/reject", svc.proposalHandler.Reject)
			}

			contracts := protected.Group("/contracts")
			{
				contracts.GET("", svc.contractHandler.List)
				contracts.POST("", svc.contractHandler.Create)
				contracts.GET("/:id", svc.contractHandler.GetByID)
				contracts.PUT("/:id", svc.contractHandler.Update)
				contracts.DELETE("/:id", svc.contractHandler.Delete)
				contracts.POST("/:id/milestones", svc.contractHandler.CreateMilestone)
			}

			milestones := protected.Group("/milestones")
			{
				milestones.GET("", svc.milestoneHandler.List)
				milestones.GET("/:id", svc.milestoneHandler.GetByID)
				milestones.PUT("/:id", svc.milestoneHandler.Update)
				milestones.DELETE("/:id", svc.milestoneHandler.Delete)
				milestones.POST("/:id/file", svc.milestoneHandler.AttachFile)
				milestones.DELETE("/:id/file", svc.milestoneHandler.DetachFile)
			}

			files := protected.Group("/files")
			{
				files.GET("/:id", svc.fileHandler.GetByID)
				files.GET("/:id/download", svc.fileHandler.Download)
				files.DELETE("/:id", svc.fileHandler.Delete)
			}

			// Admin only routes
			admin := protected.Group("")
			admin.Use(middleware.AdminRequired())
			{
				admin.GET("/users", svc.userHandler.List)
				admin.POST("/users", svc.userHandler.Create)
				admin.GET("/users/:id", svc.userHandler.GetByID)
				admin.DELETE("/users/:id", svc.userHandler.Delete)

				admin.GET("/audit-logs", svc.auditLogHandler.List)
			}
		}
	}
}
