// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/coursehub/backend/internal/cache"
	"github.com/coursehub/backend/internal/config"
	"github.com/coursehub/backend/internal/handlers"
	"github.com/coursehub/backend/internal/middleware"
	"github.com/coursehub/backend/internal/services"
	"github.com/coursehub/backend/internal/utils"
)

func Initialize(db *gorm.DB, cfg *config.Config, cacheClient *cache.Client) *gin.Engine {
	// Initialize services
	notificationService := services.NewNotificationService(db, cfg)
	authService := services.NewAuthService(db, cfg, notificationService)
	affiliateService := services.NewAffiliateService(db, cfg, cacheClient, notificationService)
	commissionService := services.NewCommissionService(db, cfg)
	payoutService := services.NewPayoutService(db, cfg, notificationService)
	refundService := services.NewRefundService(db, cfg)
	reportService := services.NewReportService(db, cfg)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	affiliateHandler := handlers.NewAffiliateHandler(affiliateService, payoutService)
	webhookHandler := handlers.NewWebhookHandler(commissionService, refundService)
	adminHandler := handlers.NewAdminHandler(affiliateService, payoutService, refundService, reportService)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS([]string{cfg.Frontend.BaseURL}))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Authentication routes
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.GET("/me", middleware.AuthRequired(), authHandler.GetProfile)
		}

		// Affiliate routes
		affiliates := v1.Group("/affiliates")
		{
			// Public checkout-time code validation
			affiliates.GET("/validate/:code", affiliateHandler.ValidateCode)

			protected := affiliates.Group("")
			protected.Use(middleware.AuthRequired())
			{
				protected.POST("/register", affiliateHandler.Register)
				protected.GET("/dashboard", affiliateHandler.GetDashboard)
				protected.PUT("/profile", affiliateHandler.UpdateProfile)
				protected.POST("/connect", affiliateHandler.CreateConnectedAccount)
				protected.POST("/connect/refresh", affiliateHandler.RefreshAccountStatus)
			}
		}

		// Payment processor webhooks (shared secret, not user auth)
		webhooks := v1.Group("/webhooks")
		webhooks.Use(middleware.WebhookRateLimit())
		webhooks.Use(middleware.WebhookAuth(cfg.Payment.WebhookSecret))
		{
			webhooks.POST("/referral", webhookHandler.RecordReferral)
			webhooks.POST("/refund", webhookHandler.RecordRefund)
		}

		// Admin routes
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			adminAffiliates := admin.Group("/affiliates")
			{
				adminAffiliates.GET("", adminHandler.ListAffiliates)
				adminAffiliates.POST("/:id/payouts", adminHandler.RecordPayout)
				adminAffiliates.POST("/:id/revoke", adminHandler.RevokeAffiliate)
				adminAffiliates.GET("/:id/abuse-signal", adminHandler.GetAbuseSignal)
			}

			adminReports := admin.Group("/reports")
			{
				adminReports.GET("/earnings", adminHandler.GetEarningsReport)
			}
		}
	}

	return r
}
