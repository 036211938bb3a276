// internal/service/billing/catalog.go
package billing

import (
	"github.com/shopspring/decimal"

	"entitlement-service/internal/config"
	"entitlement-service/internal/domain/billing"
)

var planFeatures = map[billing.Plan][]string{
	billing.PlanMonthly: {
		"Unlimited projects",
		"AI-assisted reports",
		"CSV and PDF export",
		"Email support",
	},
	billing.PlanYearly: {
		"Unlimited projects",
		"AI-assisted reports",
		"CSV and PDF export",
		"Priority support",
		"Two months free",
	},
}

const yearlySavings = "Save 17%"

// NewPlanCatalog builds the static plan listing from configured prices.
func NewPlanCatalog(cfg config.BillingConfig) map[billing.Plan]billing.PlanDetails {
	savings := yearlySavings
	return map[billing.Plan]billing.PlanDetails{
		billing.PlanMonthly: {
			Price:    toDisplayUnits(cfg.MonthlyPriceCents),
			Billing:  "month",
			Savings:  nil,
			Features: planFeatures[billing.PlanMonthly],
		},
		billing.PlanYearly: {
			Price:    toDisplayUnits(cfg.YearlyPriceCents),
			Billing:  "year",
			Savings:  &savings,
			Features: planFeatures[billing.PlanYearly],
		},
	}
}

func toDisplayUnits(cents int64) float64 {
	return decimal.New(cents, -2).InexactFloat64()
}
