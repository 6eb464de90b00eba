package main

import (
	"github.com/gin-gonic/gin"
	"github.com/loopgate/loopgate/internal/handlers"
	"github.com/loopgate/loopgate/internal/middleware"
	"github.com/loopgate/loopgate/internal/models"
	"github.com/loopgate/loopgate/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for gateway routes
	gatewayLimiter := middleware.NewRateLimiter(svc.cfg.Gateway.RateLimitRPS, svc.cfg.Gateway.RateLimitBurst)

	// Health check
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)

	db := models.GetDB()

	// Gateway routes (app token auth, rate limited)
	chatHandler := handlers.NewChatHandler(svc.gateway)
	embeddingsHandler := handlers.NewEmbeddingsHandler(svc.gateway)
	imagesHandler := handlers.NewImagesHandler(svc.gateway)
	creditsHandler := handlers.NewCreditsHandler(svc.gateway)

	v1 := r.Group("/v1")
	v1.Use(gatewayLimiter.Middleware(), middleware.AppAuth(svc.apps))
	{
		v1.POST("/chat/completions", chatHandler.CreateCompletion)
		v1.POST("/embeddings", embeddingsHandler.CreateEmbeddings)
		v1.POST("/images/generations", imagesHandler.CreateImage)
		v1.GET("/credits", creditsHandler.GetBalance)
	}

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		authHandler := handlers.NewAuthHandler(db)
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.POST("/auth/change-password", authHandler.ChangePassword)

			// Providers (read for all users)
			providerHandler := handlers.NewProviderHandler(db)
			protected.GET("/providers", providerHandler.List)
			protected.GET("/providers/:id", providerHandler.Get)

			// Usage and call log (read for all users)
			usageHandler := handlers.NewUsageHandler(db)
			protected.GET("/usage/:scope_id/summary", usageHandler.GetSummary)
			protected.GET("/usage/:scope_id/models", usageHandler.GetModelBreakdown)
			protected.GET("/usage/:scope_id/records", usageHandler.ListRecords)
			protected.GET("/usage/:scope_id/calls", usageHandler.ListCalls)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/auth/users", authHandler.CreateUser)

			// Providers (write operations)
			providerHandler := handlers.NewProviderHandler(db)
			admin.POST("/providers", providerHandler.Create)
			admin.PUT("/providers/:id", providerHandler.Update)
			admin.DELETE("/providers/:id", providerHandler.Delete)

			// Credentials
			credentialHandler := handlers.NewCredentialHandler(svc.credentials)
			admin.GET("/providers/:id/credentials", credentialHandler.ListByProvider)
			admin.POST("/credentials", credentialHandler.Create)
			admin.PUT("/credentials/:id", credentialHandler.Update)
			admin.DELETE("/credentials/:id", credentialHandler.Delete)

			// Rates
			rateHandler := handlers.NewRateHandler(db)
			admin.GET("/providers/:id/rates", rateHandler.ListByProvider)
			admin.POST("/rates", rateHandler.Upsert)
			admin.DELETE("/rates/:id", rateHandler.Delete)

			// Apps
			appHandler := handlers.NewAppHandler(db)
			admin.GET("/apps", appHandler.List)
			admin.POST("/apps", appHandler.Create)
			admin.PUT("/apps/:id", appHandler.Update)
			admin.POST("/apps/:id/rotate-token", appHandler.RotateToken)
			admin.DELETE("/apps/:id", appHandler.Delete)

			// Manual ledger reconcile
			reconcileHandler := handlers.NewReconcileHandler(svc.reconciler)
			admin.POST("/reconcile/:scope_id", reconcileHandler.Run)
		}
	}
}
