// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"entitlement-service/internal/pkg/jwt"
	"entitlement-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID      = "user_id"
	ctxEmail       = "email"
	ctxRoles       = "roles"
	ctxJTI         = "jti"
	ctxEntitlement = "entitlement"
)

// TokenVerifier validates bearer access tokens.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// RevocationChecker reports tokens revoked before expiry.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	verifier    TokenVerifier
	revocations RevocationChecker
}

type AuthOption func(*AuthMiddleware)

// WithRevocationCheck rejects tokens found in the revocation list.
func WithRevocationCheck(r RevocationChecker) AuthOption {
	return func(m *AuthMiddleware) { m.revocations = r }
}

func NewAuthMiddleware(verifier TokenVerifier, opts ...AuthOption) *AuthMiddleware {
	m := &AuthMiddleware{verifier: verifier}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Auth validates the bearer token and puts the caller's identity on the context.
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.verifier.VerifyAccessToken(token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", nil)
			return
		}

		if m.revocations != nil {
			revoked, err := m.revocations.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				response.Error(c, http.StatusServiceUnavailable, "unable to validate session", nil)
				return
			}
			if revoked {
				response.Error(c, http.StatusUnauthorized, "token has been revoked", nil)
				return
			}
		}

		c.Set(ctxUserID, claims.UserID())
		c.Set(ctxEmail, claims.Email)
		c.Set(ctxRoles, claims.Roles)
		c.Set(ctxJTI, claims.ID)

		c.Next()
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return parts[1]
	}
	return ""
}

// GetUserID returns the authenticated user's id.
func GetUserID(c *gin.Context) (string, bool) {
	v, exists := c.Get(ctxUserID)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

// MustGetUserID gets the user id from context or panics
func MustGetUserID(c *gin.Context) string {
	id, ok := GetUserID(c)
	if !ok {
		panic("user_id not found in context")
	}
	return id
}

// RequireRole requires at least one of roles. Must run after Auth.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles := c.GetStringSlice(ctxRoles)
		for _, have := range userRoles {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}
		response.Error(c, http.StatusForbidden, "insufficient permissions", nil)
	}
}
