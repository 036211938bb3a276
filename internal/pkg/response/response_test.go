package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "entitlement-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", xerrors.New(xerrors.ErrNotFound, "User not found"), http.StatusNotFound},
		{"unauthorized", xerrors.ErrUnauthorized, http.StatusForbidden},
		{"bad request", xerrors.New(xerrors.ErrBadRequest, "You are already on the monthly plan"), http.StatusBadRequest},
		{"signature", xerrors.ErrInvalidSignature, http.StatusBadRequest},
		{"payment", xerrors.ErrPaymentRequired, http.StatusPaymentRequired},
		{"configuration", xerrors.ErrConfiguration, http.StatusInternalServerError},
		{"portal", xerrors.ErrPortalUnavailable, http.StatusInternalServerError},
		{"upstream", xerrors.Wrap(xerrors.ErrUpstream, "switch plan"), http.StatusBadGateway},
		{"rate limited", xerrors.ErrRateLimited, http.StatusTooManyRequests},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromError(tt.err))
		})
	}
}

func TestFromError_HidesCause(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	err := xerrors.New(xerrors.ErrConfiguration, "Subscription PriceId configure error").
		WithCause(errors.New("STRIPE_YEARLY_PLAN_PRICE_ID is empty"))
	FromError(c, err)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Subscription PriceId configure error", body.Message)
	assert.Empty(t, body.Error)
	assert.True(t, c.IsAborted())
}
