package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"entitlement-service/internal/domain/billing"
	wstypes "entitlement-service/internal/domain/websocket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func connect(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := NewClient(hub, nil, &ClientAuth{UserID: userID, SessionID: "sess_" + userID})
	hub.Register <- c
	msg := next(t, c)
	require.Equal(t, wstypes.EventTypeConnected, msg.Type)
	return c
}

func next(t *testing.T, c *Client) *wstypes.WSMessage {
	t.Helper()
	select {
	case data := <-c.send:
		msg, err := wstypes.ParseMessage(data)
		require.NoError(t, err)
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_NotifyEntitlementChanged(t *testing.T) {
	hub := startHub(t)
	alice := connect(t, hub, "user_alice")
	bob := connect(t, hub, "user_bob")

	hub.NotifyEntitlementChanged("user_alice", &billing.SubscriptionRecord{
		UserID:  "user_alice",
		Plan:    billing.PlanMonthly,
		Status:  billing.StatusActive,
		Version: 3,
	})

	msg := next(t, alice)
	assert.Equal(t, wstypes.EventTypeEntitlementUpdated, msg.Type)
	assert.NotEmpty(t, msg.ID)

	raw, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var data wstypes.EntitlementChangedData
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.Equal(t, "active", data.Status)
	require.NotNil(t, data.Plan)
	assert.Equal(t, "monthly", *data.Plan)
	assert.EqualValues(t, 3, data.Version)

	assert.Never(t, func() bool { return len(bob.send) > 0 }, 50*time.Millisecond, 10*time.Millisecond)
}

func TestHub_NotifyTrialWillEnd_RespectsSubscriptions(t *testing.T) {
	hub := startHub(t)
	c := connect(t, hub, "user_1")

	c.Unsubscribe(wstypes.ChannelBilling)
	hub.NotifyTrialWillEnd("user_1", 1772971200)
	assert.Never(t, func() bool { return len(c.send) > 0 }, 50*time.Millisecond, 10*time.Millisecond)

	require.True(t, c.Subscribe(wstypes.ChannelBilling))
	hub.NotifyTrialWillEnd("user_1", 1772971200)
	msg := next(t, c)
	assert.Equal(t, wstypes.EventTypeTrialWillEnd, msg.Type)
}

func TestHub_UnregisterAndShutdown(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c1 := connect(t, hub, "user_1")
	connect(t, hub, "user_1")
	assert.Eventually(t, func() bool { return hub.ConnectedClients("user_1") == 2 }, time.Second, 10*time.Millisecond)

	hub.unregister <- c1
	assert.Eventually(t, func() bool { return hub.ConnectedClients("user_1") == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, hub.TotalClients())
	assert.NotPanics(t, c1.Close)
}

func TestClient_SubscribeRejectsUnknownChannel(t *testing.T) {
	c := NewClient(NewHub(nil, zap.NewNop()), nil, &ClientAuth{UserID: "user_1"})
	assert.True(t, c.IsSubscribed(wstypes.ChannelBilling))
	assert.False(t, c.Subscribe("audit"))
	assert.False(t, c.IsSubscribed("audit"))
}
