// internal/websocket/handler/entitlement.go
package handlers

import (
	"context"
	"fmt"

	"entitlement-service/internal/domain/billing"
	wstypes "entitlement-service/internal/domain/websocket"
	ws "entitlement-service/internal/websocket"

	"go.uber.org/zap"
)

// Reconciler produces the caller's current entitlement.
type Reconciler interface {
	Reconcile(ctx context.Context, userID string) (*billing.EntitlementPayload, error)
}

type EntitlementHandler struct {
	reconciler Reconciler
	logger     *zap.Logger
}

func NewEntitlementHandler(reconciler Reconciler, logger *zap.Logger) *EntitlementHandler {
	return &EntitlementHandler{reconciler: reconciler, logger: logger}
}

func (h *EntitlementHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{wstypes.EventTypeEntitlementGet}
}

// HandleMessage answers entitlement:get with a fresh reconciliation.
func (h *EntitlementHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	if msg.Type != wstypes.EventTypeEntitlementGet {
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}

	payload, err := h.reconciler.Reconcile(ctx, client.UserID())
	if err != nil {
		h.logger.Error("websocket entitlement lookup failed",
			zap.String("user_id", client.UserID()),
			zap.Error(err),
		)
		return err
	}

	reply := wstypes.NewMessage(wstypes.EventTypeEntitlementState, payload)
	if msg.ID != "" {
		reply.Metadata = map[string]interface{}{"request_id": msg.ID}
	}
	client.SendMessage(reply)
	return nil
}
