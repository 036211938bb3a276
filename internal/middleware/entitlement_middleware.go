// internal/middleware/entitlement_middleware.go
package middleware

import (
	"context"
	"net/http"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EntitlementReconciler produces the caller's current entitlement.
type EntitlementReconciler interface {
	Reconcile(ctx context.Context, userID string) (*billing.EntitlementPayload, error)
}

// RequireEntitlement lets a request through only when the user is active on a
// plan or inside a trial. Otherwise it answers 402 with the entitlement so the
// client can render the upgrade screen. Must run after Auth.
func RequireEntitlement(reconciler EntitlementReconciler, disabled bool, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if disabled {
			c.Next()
			return
		}

		userID, ok := GetUserID(c)
		if !ok {
			response.Unauthorized(c, "authentication required")
			return
		}

		payload, err := reconciler.Reconcile(c.Request.Context(), userID)
		if err != nil {
			logger.Error("entitlement check failed", zap.String("user_id", userID), zap.Error(err))
			response.FromError(c, err)
			return
		}

		if !payload.HasAccess() {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, payload)
			return
		}

		c.Set(ctxEntitlement, payload)
		c.Next()
	}
}

// GetEntitlement returns the payload stored by RequireEntitlement.
func GetEntitlement(c *gin.Context) (*billing.EntitlementPayload, bool) {
	v, exists := c.Get(ctxEntitlement)
	if !exists {
		return nil, false
	}
	p, ok := v.(*billing.EntitlementPayload)
	return p, ok
}
