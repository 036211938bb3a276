package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"entitlement-service/internal/domain/billing"
	wstypes "entitlement-service/internal/domain/websocket"
	"entitlement-service/internal/pkg/jwt"
	ws "entitlement-service/internal/websocket"
	wsHandlers "entitlement-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubVerifier struct{}

func (stubVerifier) VerifyAccessToken(token string) (*jwt.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &jwt.Claims{
		SessionPurpose:   "access",
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "user_1", ID: "jti_1"},
	}, nil
}

type stubReconciler struct{}

func (stubReconciler) Reconcile(_ context.Context, userID string) (*billing.EntitlementPayload, error) {
	return &billing.EntitlementPayload{
		IsTrialActive: true,
		TrialDays:     7,
		Status:        billing.StatusTrialing,
		DaysLeft:      5,
	}, nil
}

func newServer(t *testing.T, origins []string) (*httptest.Server, *ws.Hub) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := ws.NewHub(stubVerifier{}, zap.NewNop())
	hub.RegisterHandler(wsHandlers.NewEntitlementHandler(stubReconciler{}, zap.NewNop()))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	h := NewWebSocketHandler(hub, origins, zap.NewNop())
	r.GET("/ws", h.HandleConnection)
	r.GET("/ws/stats", h.GetStats)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
}

func readMessage(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg wstypes.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return &msg
}

func TestHandleConnection_EntitlementFlow(t *testing.T) {
	srv, hub := newServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), nil)
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeConnected, hello.Type)
	assert.Eventually(t, func() bool { return hub.ConnectedClients("user_1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "entitlement:get", "id": "req_1"}))
	state := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeEntitlementState, state.Type)
	assert.Equal(t, "req_1", state.Metadata["request_id"])
	data, ok := state.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "trialing", data["status"])

	hub.NotifyTrialWillEnd("user_1", 1772971200)
	pushed := readMessage(t, conn)
	assert.Equal(t, wstypes.EventTypeTrialWillEnd, pushed.Type)
}

func TestHandleConnection_RejectsBadToken(t *testing.T) {
	srv, _ := newServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=bad"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHandleConnection_ChecksOrigin(t *testing.T) {
	srv, _ := newServer(t, []string{"https://app.example.com"})

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), header)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://app.example.com")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?token=good"), header)
	require.NoError(t, err)
	conn.Close()
}
