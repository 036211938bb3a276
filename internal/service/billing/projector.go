// internal/service/billing/projector.go
package billing

import (
	"time"

	"entitlement-service/internal/domain/billing"
)

// Projector turns a stored record into the public entitlement payload.
type Projector struct {
	catalog   map[billing.Plan]billing.PlanDetails
	trialDays int
	now       func() time.Time
}

func NewProjector(catalog map[billing.Plan]billing.PlanDetails, trialDays int, now func() time.Time) *Projector {
	if now == nil {
		now = time.Now
	}
	return &Projector{catalog: catalog, trialDays: trialDays, now: now}
}

// Project builds the payload for rec. A nil record is a new user on a fresh
// trial starting now.
func (p *Projector) Project(rec *billing.SubscriptionRecord) *billing.EntitlementPayload {
	now := p.now()

	if rec == nil {
		trial := ComputeTrial(now, p.trialDays, now)
		return &billing.EntitlementPayload{
			IsTrialActive: trial.DaysLeft > 0,
			CurrentPlan:   nil,
			TrialEndsAt:   &trial.EndsAt,
			TrialDays:     p.trialDays,
			Status:        billing.StatusTrialing,
			DaysLeft:      trial.DaysLeft,
			PlanCatalog:   p.catalog,
		}
	}

	daysLeft := 0
	endsInFuture := false
	if rec.TrialEndsAt != nil {
		daysLeft = DaysLeftAt(*rec.TrialEndsAt, now)
		endsInFuture = rec.TrialEndsAt.After(now)
	}
	isTrialActive := rec.Status == billing.StatusTrialing && (daysLeft > 0 || endsInFuture)
	if !isTrialActive {
		daysLeft = 0
	}

	var plan *billing.Plan
	if rec.Plan != billing.PlanNone {
		pl := rec.Plan
		plan = &pl
	}

	return &billing.EntitlementPayload{
		IsTrialActive: isTrialActive,
		CurrentPlan:   plan,
		TrialEndsAt:   rec.TrialEndsAt,
		TrialDays:     rec.TrialDays,
		Status:        rec.Status,
		DaysLeft:      daysLeft,
		PlanCatalog:   p.catalog,
	}
}
