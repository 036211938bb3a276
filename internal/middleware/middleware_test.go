package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"entitlement-service/internal/domain/billing"
	xerrors "entitlement-service/internal/pkg/errors"
	"entitlement-service/internal/pkg/jwt"
	"entitlement-service/internal/pkg/ratelimit"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubVerifier map[string]string

func (s stubVerifier) VerifyAccessToken(token string) (*jwt.Claims, error) {
	userID, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &jwt.Claims{RegisteredClaims: jwtlib.RegisteredClaims{Subject: userID}}, nil
}

type stubReconciler struct {
	payload *billing.EntitlementPayload
	err     error
	calls   int
}

func (s *stubReconciler) Reconcile(context.Context, string) (*billing.EntitlementPayload, error) {
	s.calls++
	return s.payload, s.err
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func echoUser(c *gin.Context) {
	c.String(http.StatusOK, MustGetUserID(c))
}

func TestAuth(t *testing.T) {
	auth := NewAuthMiddleware(stubVerifier{"tok_1": "user_1"})
	r := gin.New()
	r.GET("/me", auth.Auth(), echoUser)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid token", "tok_1", http.StatusOK},
		{"missing token", "", http.StatusUnauthorized},
		{"unknown token", "tok_2", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, http.MethodGet, "/me", tt.token)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user_1", w.Body.String())
			}
		})
	}
}

func TestRequireEntitlement(t *testing.T) {
	monthly := billing.PlanMonthly
	auth := NewAuthMiddleware(stubVerifier{"tok_1": "user_1"})

	route := func(rec EntitlementReconciler, disabled bool) *gin.Engine {
		r := gin.New()
		r.GET("/premium", auth.Auth(), RequireEntitlement(rec, disabled, zap.NewNop()), func(c *gin.Context) {
			p, ok := GetEntitlement(c)
			if !ok {
				c.Status(http.StatusOK)
				return
			}
			c.JSON(http.StatusOK, p)
		})
		return r
	}

	t.Run("active plan passes", func(t *testing.T) {
		rec := &stubReconciler{payload: &billing.EntitlementPayload{Status: billing.StatusActive, CurrentPlan: &monthly}}
		w := serve(route(rec, false), http.MethodGet, "/premium", "tok_1")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("active trial passes", func(t *testing.T) {
		rec := &stubReconciler{payload: &billing.EntitlementPayload{Status: billing.StatusTrialing, IsTrialActive: true, DaysLeft: 3}}
		w := serve(route(rec, false), http.MethodGet, "/premium", "tok_1")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("expired trial is payment required", func(t *testing.T) {
		rec := &stubReconciler{payload: &billing.EntitlementPayload{Status: billing.StatusTrialExpired}}
		w := serve(route(rec, false), http.MethodGet, "/premium", "tok_1")
		require.Equal(t, http.StatusPaymentRequired, w.Code)

		var body billing.EntitlementPayload
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, billing.StatusTrialExpired, body.Status)
	})

	t.Run("reconcile error maps kind", func(t *testing.T) {
		rec := &stubReconciler{err: xerrors.New(xerrors.ErrNotFound, "User not found")}
		w := serve(route(rec, false), http.MethodGet, "/premium", "tok_1")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("disabled guard skips lookup", func(t *testing.T) {
		rec := &stubReconciler{}
		w := serve(route(rec, true), http.MethodGet, "/premium", "tok_1")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Zero(t, rec.calls)
	})
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	auth := NewAuthMiddleware(stubVerifier{"tok_1": "user_1", "tok_2": "user_2"})
	r := gin.New()
	r.POST("/upgrade", auth.Auth(),
		RateLimit(ratelimit.NewRateLimiter(client), "upgrade", 2, time.Minute, zap.NewNop()),
		echoUser,
	)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_1").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_1").Code)

	w := serve(r, http.MethodPost, "/upgrade", "tok_1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_2").Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_1").Code)
}

func TestRateLimit_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	auth := NewAuthMiddleware(stubVerifier{"tok_1": "user_1"})
	r := gin.New()
	r.POST("/upgrade", auth.Auth(),
		RateLimit(ratelimit.NewRateLimiter(client), "upgrade", 1, time.Minute, zap.NewNop()),
		echoUser,
	)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_1").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodPost, "/upgrade", "tok_1").Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com/"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://other.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoveryMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RecoveryMiddleware(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	w := serve(r, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
}

type roleVerifier struct{}

func (roleVerifier) VerifyAccessToken(token string) (*jwt.Claims, error) {
	return &jwt.Claims{
		Roles:            []string{token},
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "user_" + token},
	}, nil
}

func TestRequireRole(t *testing.T) {
	auth := NewAuthMiddleware(roleVerifier{})
	r := gin.New()
	r.GET("/admin", auth.Auth(), auth.RequireRole("admin", "super_admin"), echoUser)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", "admin").Code)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/admin", "super_admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(r, http.MethodGet, "/admin", "member").Code)
}

type revokedSet map[string]bool

func (r revokedSet) IsRevoked(_ context.Context, jti string) (bool, error) {
	if jti == "broken" {
		return false, errors.New("redis down")
	}
	return r[jti], nil
}

type jtiVerifier struct{}

func (jtiVerifier) VerifyAccessToken(token string) (*jwt.Claims, error) {
	return &jwt.Claims{RegisteredClaims: jwtlib.RegisteredClaims{Subject: "user_1", ID: token}}, nil
}

func TestAuth_RevocationCheck(t *testing.T) {
	auth := NewAuthMiddleware(jtiVerifier{}, WithRevocationCheck(revokedSet{"jti_revoked": true}))
	r := gin.New()
	r.GET("/me", auth.Auth(), echoUser)

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/me", "jti_ok").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "jti_revoked").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(r, http.MethodGet, "/me", "broken").Code)
}
