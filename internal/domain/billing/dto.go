// internal/domain/billing/dto.go
package billing

import "time"

// EntitlementPayload is the public entitlement view returned to clients.
type EntitlementPayload struct {
	IsTrialActive bool                 `json:"isTrialActive"`
	CurrentPlan   *Plan                `json:"currentPlan"`
	TrialEndsAt   *time.Time           `json:"trialEndsAt"`
	TrialDays     int                  `json:"trialDays"`
	Status        SubscriptionStatus   `json:"status"`
	DaysLeft      int                  `json:"daysLeft"`
	PlanCatalog   map[Plan]PlanDetails `json:"planCatalog"`
}

// HasAccess reports whether the payload grants premium access.
func (p *EntitlementPayload) HasAccess() bool {
	if p == nil {
		return false
	}
	if p.Status == StatusActive && p.CurrentPlan != nil && *p.CurrentPlan != PlanNone {
		return true
	}
	return p.IsTrialActive
}

type PlanDetails struct {
	Price    float64  `json:"price"`
	Billing  string   `json:"billing"`
	Savings  *string  `json:"savings"`
	Features []string `json:"features"`
}

type UpgradeRequest struct {
	Plan        Plan   `json:"plan" binding:"required,oneof=monthly yearly"`
	CallbackURL string `json:"callbackUrl" binding:"required,url"`
}

type PortalRequest struct {
	CallbackURL string `json:"callbackUrl" binding:"required,url"`
}

type SwitchPlanRequest struct {
	NewPlan Plan `json:"newPlan" binding:"required,oneof=monthly yearly"`
}

type RedirectResponse struct {
	URL string `json:"url"`
}

type SwitchPlanResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
