// internal/domain/billing/provider.go
package billing

import "context"

type CheckoutSessionRequest struct {
	CustomerID string
	PriceID    string
	Plan       Plan
	UserID     string
	SuccessURL string
	CancelURL  string
}

type PriceChangeRequest struct {
	SubscriptionID string
	ItemID         string
	NewPriceID     string
	Metadata       map[string]string
}

// PaymentProvider is the subset of the payment provider used by billing.
type PaymentProvider interface {
	CreateCustomer(ctx context.Context, email, name, userID string) (string, error)
	CreateCheckoutSession(ctx context.Context, req *CheckoutSessionRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
	ListSubscriptions(ctx context.Context, customerID string, limit int) ([]*ProviderSubscription, error)
	UpdateSubscriptionPrice(ctx context.Context, req *PriceChangeRequest) error
}

// Notifier receives entitlement changes for delivery to connected clients.
type Notifier interface {
	NotifyEntitlementChanged(userID string, rec *SubscriptionRecord)
	NotifyTrialWillEnd(userID string, trialEnd int64)
}

// EventDeduplicator remembers processed webhook event ids.
type EventDeduplicator interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}
