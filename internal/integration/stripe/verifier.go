// internal/integration/stripe/verifier.go
package stripe

import (
	"fmt"

	"github.com/stripe/stripe-go/v82/webhook"

	"entitlement-service/internal/domain/billing"
)

// EventVerifier checks the Stripe-Signature header against the endpoint secret.
type EventVerifier struct {
	secret string
}

func NewEventVerifier(secret string) *EventVerifier {
	return &EventVerifier{secret: secret}
}

func (v *EventVerifier) Verify(payload []byte, signature string) (*billing.Event, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("webhook secret not configured")
	}
	if signature == "" {
		return nil, fmt.Errorf("missing Stripe signature")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}

	out := &billing.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Created: event.Created,
	}
	if event.Data != nil {
		out.Data = event.Data.Raw
	}
	return out, nil
}
