// internal/websocket/hub.go
package websocket

import (
	"context"
	"sync"

	"entitlement-service/internal/domain/billing"
	wstypes "entitlement-service/internal/domain/websocket"
	"entitlement-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// TokenVerifier validates access tokens presented on connect.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	Register   chan *Client
	unregister chan *Client

	broadcast chan *BroadcastMessage

	handlerRegistry *HandlerRegistry

	verifier TokenVerifier
	logger   *zap.Logger
}

type BroadcastMessage struct {
	UserIDs []string
	Channel wstypes.ChannelType
	Message *wstypes.WSMessage
}

func NewHub(verifier TokenVerifier, logger *zap.Logger) *Hub {
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		handlerRegistry: NewHandlerRegistry(),
		verifier:        verifier,
		logger:          logger,
	}
}

// AuthenticateClient validates the JWT token and returns the client identity
func (h *Hub) AuthenticateClient(token string) (*ClientAuth, error) {
	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return &ClientAuth{
		UserID:    claims.UserID(),
		SessionID: claims.ID,
		Roles:     claims.Roles,
		Email:     claims.Email,
	}, nil
}

// RegisterHandler registers a message handler
func (h *Hub) RegisterHandler(handler MessageHandler) {
	h.handlerRegistry.Register(handler)
}

// HandleClientMessage processes a message from a client using registered handlers
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error {
	handler, exists := h.handlerRegistry.GetHandler(msg.Type)
	if !exists {
		return nil // built-in types are handled by the client
	}
	return handler.HandleMessage(ctx, client, msg)
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true

	h.logger.Info("websocket client connected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id":    client.userID,
		"session_id": client.sessionID,
		"channels":   client.Channels(),
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := clients[client]; !exists {
		return
	}

	delete(clients, client)
	client.Close()
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}

	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", h.totalClients()),
	)
}

func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	send := func(clients map[*Client]bool) {
		for client := range clients {
			if client.IsSubscribed(msg.Channel) {
				client.SendMessage(msg.Message)
			}
		}
	}

	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			send(clients)
		}
		return
	}
	for _, userID := range msg.UserIDs {
		send(h.clients[userID])
	}
}

func (h *Hub) ConnectedClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

// publish queues msg without blocking the caller; a full queue drops it.
func (h *Hub) publish(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("websocket broadcast queue full, dropping message",
			zap.String("type", string(msg.Message.Type)),
		)
	}
}

// NotifyEntitlementChanged pushes the user's new record state on the billing channel.
func (h *Hub) NotifyEntitlementChanged(userID string, rec *billing.SubscriptionRecord) {
	if rec == nil {
		return
	}

	data := wstypes.EntitlementChangedData{
		Status:           string(rec.Status),
		TrialEndsAt:      rec.TrialEndsAt,
		CurrentPeriodEnd: rec.CurrentPeriodEnd,
		Version:          rec.Version,
	}
	if rec.Plan != billing.PlanNone {
		plan := string(rec.Plan)
		data.Plan = &plan
	}

	h.publish(&BroadcastMessage{
		UserIDs: []string{userID},
		Channel: wstypes.ChannelBilling,
		Message: wstypes.NewMessage(wstypes.EventTypeEntitlementUpdated, data),
	})
}

func (h *Hub) NotifyTrialWillEnd(userID string, trialEnd int64) {
	h.publish(&BroadcastMessage{
		UserIDs: []string{userID},
		Channel: wstypes.ChannelBilling,
		Message: wstypes.NewMessage(wstypes.EventTypeTrialWillEnd, wstypes.TrialWillEndData{TrialEnd: trialEnd}),
	})
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
		delete(h.clients, userID)
	}
}
