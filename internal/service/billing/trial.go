// internal/service/billing/trial.go
package billing

import (
	"math"
	"time"

	"entitlement-service/internal/domain/billing"
)

const day = 24 * time.Hour

// TrialWindow is the computed trial for a given anchor.
type TrialWindow struct {
	EndsAt   time.Time
	DaysLeft int
}

// ComputeTrial returns the trial window that starts at anchor and lasts
// trialDays, evaluated at now.
func ComputeTrial(anchor time.Time, trialDays int, now time.Time) TrialWindow {
	if trialDays < 0 {
		trialDays = 0
	}
	endsAt := anchor.Add(time.Duration(trialDays) * day)
	return TrialWindow{EndsAt: endsAt, DaysLeft: DaysLeftAt(endsAt, now)}
}

// DaysLeftAt counts whole or partial days remaining until endsAt. A partial
// day counts as a full one; the result is never negative.
func DaysLeftAt(endsAt, now time.Time) int {
	remaining := endsAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(float64(remaining) / float64(day)))
}

// InferStatus backfills the status of a legacy record that was persisted
// without one. The trial end falls back to created_at + trial_days.
func InferStatus(rec *billing.SubscriptionRecord, defaultTrialDays int, now time.Time) (billing.SubscriptionStatus, time.Time) {
	endsAt := trialEnd(rec, defaultTrialDays)
	if endsAt.After(now) {
		return billing.StatusTrialing, endsAt
	}
	return billing.StatusTrialExpired, endsAt
}

func trialEnd(rec *billing.SubscriptionRecord, defaultTrialDays int) time.Time {
	if rec.TrialEndsAt != nil {
		return *rec.TrialEndsAt
	}
	days := rec.TrialDays
	if days <= 0 {
		days = defaultTrialDays
	}
	return rec.CreatedAt.Add(time.Duration(days) * day)
}
