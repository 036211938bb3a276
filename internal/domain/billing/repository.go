// internal/domain/billing/repository.go
package billing

import (
	"context"
	"time"
)

// RecordPatch describes a partial update to a SubscriptionRecord.
// A nil field leaves the stored value unchanged. Setting Plan to a pointer
// to PlanNone clears the plan; ClearTrial removes the trial window.
type RecordPatch struct {
	Plan                 *Plan
	Status               *SubscriptionStatus
	StripeSubscriptionID *string
	StripePriceID        *string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	TrialEndsAt          *time.Time
	TrialDays            *int
	UpgradedAt           *time.Time
	CanceledAt           *time.Time
	ClearTrial           bool
}

// Apply writes the patch onto rec in place.
func (p RecordPatch) Apply(rec *SubscriptionRecord) {
	if p.Plan != nil {
		rec.Plan = *p.Plan
	}
	if p.Status != nil {
		rec.Status = *p.Status
	}
	if p.StripeSubscriptionID != nil {
		rec.StripeSubscriptionID = *p.StripeSubscriptionID
	}
	if p.StripePriceID != nil {
		rec.StripePriceID = *p.StripePriceID
	}
	if p.CurrentPeriodStart != nil {
		rec.CurrentPeriodStart = timeRef(*p.CurrentPeriodStart)
	}
	if p.CurrentPeriodEnd != nil {
		rec.CurrentPeriodEnd = timeRef(*p.CurrentPeriodEnd)
	}
	if p.ClearTrial {
		rec.TrialEndsAt = nil
	} else if p.TrialEndsAt != nil {
		rec.TrialEndsAt = timeRef(*p.TrialEndsAt)
	}
	if p.TrialDays != nil {
		rec.TrialDays = *p.TrialDays
	}
	if p.UpgradedAt != nil {
		rec.UpgradedAt = timeRef(*p.UpgradedAt)
	}
	if p.CanceledAt != nil {
		rec.CanceledAt = timeRef(*p.CanceledAt)
	}
	if rec.Status.ClearsPlan() {
		rec.Plan = PlanNone
	}
}

func timeRef(t time.Time) *time.Time {
	return &t
}

// Condition decides whether a conditional upsert may overwrite the existing
// record. existing is nil when no record is stored; every Condition must
// return true in that case.
type Condition func(existing *SubscriptionRecord) bool

// Always lets the upsert proceed unconditionally.
func Always(*SubscriptionRecord) bool { return true }

// StatusNot allows the write unless the stored record has the given status.
func StatusNot(status SubscriptionStatus) Condition {
	return func(existing *SubscriptionRecord) bool {
		return existing == nil || existing.Status != status
	}
}

// StatusMissing only allows the write for records without a stored status.
func StatusMissing(existing *SubscriptionRecord) bool {
	return existing == nil || existing.Status == StatusUnknown
}

// KeepsPlan only allows the write to an existing record whose status can
// carry a plan.
func KeepsPlan(existing *SubscriptionRecord) bool {
	return existing != nil && !existing.Status.ClearsPlan()
}

// NotDemotingActive returns a condition that refuses to move an active
// record back to trialing or to an unset status. Terminal transitions are
// still allowed.
func NotDemotingActive(next SubscriptionStatus) Condition {
	return func(existing *SubscriptionRecord) bool {
		if existing == nil || existing.Status != StatusActive {
			return true
		}
		return next != StatusTrialing && next != StatusUnknown
	}
}

// RecordRepository persists SubscriptionRecords, one per user.
type RecordRepository interface {
	// FindByUser returns the user's record, or nil with no error when absent.
	FindByUser(ctx context.Context, userID string) (*SubscriptionRecord, error)

	// UpsertConditional creates the record when absent, otherwise applies the
	// patch only if cond holds against the stored record. The returned record
	// is the stored state after the call; applied reports whether it was written.
	UpsertConditional(ctx context.Context, userID string, patch RecordPatch, cond Condition) (rec *SubscriptionRecord, applied bool, err error)

	// UpdateStatus unconditionally sets the status and applies extra.
	// Returns xerrors.ErrNotFound if the user has no record.
	UpdateStatus(ctx context.Context, userID string, status SubscriptionStatus, extra RecordPatch) error
}
