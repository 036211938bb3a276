// internal/middleware/ratelimit_middleware.go
package middleware

import (
	"context"
	"strconv"
	"time"

	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Limiter counts requests per user and endpoint.
type Limiter interface {
	Allow(ctx context.Context, userID, endpoint string, maxRequests int64, window time.Duration) (bool, error)
}

// RateLimit caps authenticated requests per user on one endpoint. A nil
// limiter or a non-positive max disables it; limiter errors fail open.
func RateLimit(limiter Limiter, endpoint string, maxRequests int64, window time.Duration, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || maxRequests <= 0 {
			c.Next()
			return
		}

		userID, ok := GetUserID(c)
		if !ok {
			c.Next()
			return
		}

		allowed, err := limiter.Allow(c.Request.Context(), userID, endpoint, maxRequests, window)
		if err != nil {
			logger.Warn("rate limiter unavailable",
				zap.String("user_id", userID),
				zap.String("endpoint", endpoint),
				zap.Error(err),
			)
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(window.Seconds())))
			response.TooManyRequests(c, "Too many requests. Please try again later")
			return
		}
		c.Next()
	}
}
