// internal/domain/billing/event.go
package billing

import "encoding/json"

// Provider event kinds handled by the webhook processor.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventInvoicePaid             = "invoice.paid"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventTrialWillEnd            = "customer.subscription.trial_will_end"
)

// Event is a verified provider event. Data holds the raw event object.
type Event struct {
	ID      string
	Type    string
	Created int64
	Data    json.RawMessage
}

// EventVerifier authenticates a raw webhook payload against its signature header.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*Event, error)
}
