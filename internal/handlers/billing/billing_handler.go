// internal/handlers/billing/billing_handler.go
package billing

import (
	"errors"
	"io"
	"net/http"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/middleware"
	"entitlement-service/internal/pkg/response"
	service "entitlement-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody bounds a single provider event delivery.
const maxWebhookBody = 65536

type BillingHandler struct {
	billingService *service.Service
	webhooks       *service.WebhookProcessor
	logger         *zap.Logger
}

func NewBillingHandler(billingService *service.Service, webhooks *service.WebhookProcessor, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{
		billingService: billingService,
		webhooks:       webhooks,
		logger:         logger,
	}
}

// GetStatus reconciles with the provider and returns the caller's entitlement.
func (h *BillingHandler) GetStatus(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	payload, err := h.billingService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, "get subscription status", userID, err)
		return
	}
	c.JSON(http.StatusOK, payload)
}

// Upgrade starts a hosted checkout for the requested plan.
func (h *BillingHandler) Upgrade(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req billing.UpgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	url, err := h.billingService.BeginUpgrade(c.Request.Context(), userID, req.Plan, req.CallbackURL)
	if err != nil {
		h.fail(c, "begin upgrade", userID, err)
		return
	}
	c.JSON(http.StatusOK, billing.RedirectResponse{URL: url})
}

// Portal opens a billing portal session.
func (h *BillingHandler) Portal(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req billing.PortalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	url, err := h.billingService.OpenBillingPortal(c.Request.Context(), userID, req.CallbackURL)
	if err != nil {
		h.fail(c, "open billing portal", userID, err)
		return
	}
	c.JSON(http.StatusOK, billing.RedirectResponse{URL: url})
}

// SwitchPlan moves an existing paid subscription to the other plan.
func (h *BillingHandler) SwitchPlan(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	var req billing.SwitchPlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.billingService.SwitchPlan(c.Request.Context(), userID, req.NewPlan)
	if err != nil {
		h.fail(c, "switch plan", userID, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Access is a premium probe: it only runs behind RequireEntitlement.
func (h *BillingHandler) Access(c *gin.Context) {
	payload, _ := middleware.GetEntitlement(c)
	c.JSON(http.StatusOK, gin.H{"access": true, "entitlement": payload})
}

// Webhook receives provider events. The body is read raw because the
// signature covers the exact bytes.
func (h *BillingHandler) Webhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody)
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, http.StatusRequestEntityTooLarge, "payload too large", nil)
			return
		}
		response.Error(c, http.StatusServiceUnavailable, "failed to read body", nil)
		return
	}

	if err := h.webhooks.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		h.logger.Warn("rejected webhook delivery", zap.Error(err), zap.String("ip", c.ClientIP()))
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *BillingHandler) fail(c *gin.Context, op, userID string, err error) {
	status := response.StatusFromError(err)
	fields := []zap.Field{zap.String("op", op), zap.String("user_id", userID), zap.Error(err)}
	if status >= http.StatusInternalServerError {
		h.logger.Error("billing request failed", fields...)
	} else {
		h.logger.Info("billing request refused", fields...)
	}

	response.FromError(c, err)
}
