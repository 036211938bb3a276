// internal/domain/billing/entity.go
package billing

import (
	"time"
)

type Plan string

const (
	PlanNone    Plan = ""
	PlanMonthly Plan = "monthly"
	PlanYearly  Plan = "yearly"
)

// Plans lists the purchasable plans in display order.
var Plans = []Plan{PlanMonthly, PlanYearly}

func (p Plan) IsValid() bool {
	return p == PlanMonthly || p == PlanYearly
}

type SubscriptionStatus string

const (
	StatusUnknown       SubscriptionStatus = ""
	StatusTrialing      SubscriptionStatus = "trialing"
	StatusActive        SubscriptionStatus = "active"
	StatusPastDue       SubscriptionStatus = "past_due"
	StatusCanceled      SubscriptionStatus = "canceled"
	StatusPaymentFailed SubscriptionStatus = "payment_failed"
	StatusTrialExpired  SubscriptionStatus = "trial_expired"
)

// ClearsPlan reports whether a record in this status must not carry a plan.
func (s SubscriptionStatus) ClearsPlan() bool {
	switch s {
	case StatusCanceled, StatusPaymentFailed, StatusTrialExpired:
		return true
	}
	return false
}

// Provider-side subscription statuses as reported by Stripe.
const (
	ProviderStatusActive   = "active"
	ProviderStatusTrialing = "trialing"
	ProviderStatusPastDue  = "past_due"
	ProviderStatusCanceled = "canceled"
	ProviderStatusUnpaid   = "unpaid"
)

// MapProviderStatus converts a provider subscription status to the local
// enum. Anything unrecognized fails closed to trial_expired.
func MapProviderStatus(status string) SubscriptionStatus {
	switch status {
	case ProviderStatusActive:
		return StatusActive
	case ProviderStatusTrialing:
		return StatusTrialing
	case ProviderStatusPastDue:
		return StatusPastDue
	case ProviderStatusCanceled:
		return StatusCanceled
	case ProviderStatusUnpaid:
		return StatusPaymentFailed
	default:
		return StatusTrialExpired
	}
}

// SubscriptionRecord is the locally persisted view of a user's subscription.
// There is at most one per user.
type SubscriptionRecord struct {
	ID                   string             `json:"id" db:"id"`
	UserID               string             `json:"user_id" db:"user_id"`
	Plan                 Plan               `json:"plan,omitempty" db:"plan"`
	Status               SubscriptionStatus `json:"status" db:"status"`
	StripeSubscriptionID string             `json:"stripe_subscription_id,omitempty" db:"stripe_subscription_id"`
	StripePriceID        string             `json:"stripe_price_id,omitempty" db:"stripe_price_id"`
	CurrentPeriodStart   *time.Time         `json:"current_period_start,omitempty" db:"current_period_start"`
	CurrentPeriodEnd     *time.Time         `json:"current_period_end,omitempty" db:"current_period_end"`
	TrialEndsAt          *time.Time         `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	TrialDays            int                `json:"trial_days" db:"trial_days"`
	UpgradedAt           *time.Time         `json:"upgraded_at,omitempty" db:"upgraded_at"`
	CanceledAt           *time.Time         `json:"canceled_at,omitempty" db:"canceled_at"`
	Version              int64              `json:"version" db:"version"`
	CreatedAt            time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time          `json:"updated_at" db:"updated_at"`
}

func (r *SubscriptionRecord) IsActive() bool {
	return r != nil && r.Status == StatusActive
}

// HasPaidSubscription reports whether the record references a provider
// subscription that can still be modified.
func (r *SubscriptionRecord) HasPaidSubscription() bool {
	if r == nil || r.StripeSubscriptionID == "" {
		return false
	}
	switch r.Status {
	case StatusCanceled, StatusTrialExpired:
		return false
	}
	return true
}

// ProviderSubscription is a snapshot of the provider's live subscription state.
type ProviderSubscription struct {
	ID                 string
	CustomerID         string
	Status             string
	ItemID             string
	PriceID            string
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialEnd           *time.Time
	Created            time.Time
	Metadata           map[string]string
}

// Metadata keys embedded into provider subscriptions at checkout.
const (
	MetadataUserID = "userId"
	MetadataPlan   = "plan"
)

func (s *ProviderSubscription) UserID() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return s.Metadata[MetadataUserID]
}

// SelectAuthoritative picks the subscription that represents the customer's
// current state: the first active one, otherwise the most recently created.
func SelectAuthoritative(subs []*ProviderSubscription) *ProviderSubscription {
	var latest *ProviderSubscription
	for _, s := range subs {
		if s == nil {
			continue
		}
		if s.Status == ProviderStatusActive {
			return s
		}
		if latest == nil || s.Created.After(latest.Created) {
			latest = s
		}
	}
	return latest
}
