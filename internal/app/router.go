// internal/app/router.go
package app

import (
	"net/http"
	"time"

	"entitlement-service/internal/config"
	billingHandler "entitlement-service/internal/handlers/billing"
	wsHandler "entitlement-service/internal/handlers/websocket"
	"entitlement-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type Handlers struct {
	BillingHandler *billingHandler.BillingHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Entitlement    gin.HandlerFunc
	Limiter        middleware.Limiter
}

func SetupRouter(r *gin.Engine, cfg config.AppConfig, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Provider Webhooks ====================
	// Unauthenticated: the Stripe signature is the credential.
	api.POST("/webhooks/stripe", h.BillingHandler.Webhook)

	// ==================== Billing ====================
	upgradeLimit := int64(cfg.Billing.UpgradeRateLimit)

	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.GET("/status", h.BillingHandler.GetStatus)
		billing.POST("/upgrade",
			middleware.RateLimit(h.Limiter, "billing:upgrade", upgradeLimit, time.Minute, logger),
			h.BillingHandler.Upgrade)
		billing.POST("/portal",
			middleware.RateLimit(h.Limiter, "billing:portal", upgradeLimit, time.Minute, logger),
			h.BillingHandler.Portal)
		billing.POST("/switch-plan",
			middleware.RateLimit(h.Limiter, "billing:switch", upgradeLimit, time.Minute, logger),
			h.BillingHandler.SwitchPlan)

		// Premium probe behind the entitlement guard
		billing.GET("/access", h.Entitlement, h.BillingHandler.Access)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.Auth(), h.AuthMiddleware.RequireRole("admin", "super_admin"))
	{
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}
}
