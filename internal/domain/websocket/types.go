// internal/domain/websocket/types.go
package websocket

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType represents different real-time event types
type EventType string

const (
	// Connection events
	EventTypePing         EventType = "ping"
	EventTypePong         EventType = "pong"
	EventTypeConnected    EventType = "connected"
	EventTypeDisconnected EventType = "disconnected"
	EventTypeError        EventType = "error"

	// Billing events (server -> client)
	EventTypeEntitlementUpdated EventType = "entitlement:updated"
	EventTypeTrialWillEnd       EventType = "trial:will_end"

	// Billing requests (client -> server), answered with entitlement:state
	EventTypeEntitlementGet   EventType = "entitlement:get"
	EventTypeEntitlementState EventType = "entitlement:state"

	// Subscription events
	EventTypeSubscribe   EventType = "subscribe"
	EventTypeUnsubscribe EventType = "unsubscribe"
)

// WSMessage is the universal message format
type WSMessage struct {
	Type      EventType              `json:"type"`
	Data      interface{}            `json:"data,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// ChannelType is a stream clients can subscribe to.
type ChannelType string

const (
	ChannelBilling ChannelType = "billing"
	ChannelSystem  ChannelType = "system"
)

// IsValid reports whether the channel is one the server publishes on.
func (c ChannelType) IsValid() bool {
	return c == ChannelBilling || c == ChannelSystem
}

// SubscribeRequest sent by client to subscribe to specific channels
type SubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// UnsubscribeRequest sent by client to unsubscribe from channels
type UnsubscribeRequest struct {
	Channels []ChannelType `json:"channels"`
}

// ErrorData for error events
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// EntitlementChangedData is pushed after a webhook rewrites the user's record.
type EntitlementChangedData struct {
	Status           string     `json:"status"`
	Plan             *string    `json:"plan"`
	TrialEndsAt      *time.Time `json:"trialEndsAt,omitempty"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	Version          int64      `json:"version"`
}

// TrialWillEndData carries the provider's trial end as unix seconds.
type TrialWillEndData struct {
	TrialEnd int64 `json:"trialEnd"`
}

// NewMessage stamps a message with the current time and a sortable id.
func NewMessage(eventType EventType, data interface{}) *WSMessage {
	return &WSMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
		ID:        ulid.Make().String(),
	}
}

func (m *WSMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ParseMessage(data []byte) (*WSMessage, error) {
	var msg WSMessage
	err := json.Unmarshal(data, &msg)
	return &msg, err
}
