package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"entitlement-service/internal/domain/billing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TRIAL_DAYS", "")
	t.Setenv("PROVIDER_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, 7, cfg.Billing.TrialDays)
	assert.Equal(t, 5*time.Second, cfg.Billing.ProviderTimeout)
	assert.Equal(t, 72*time.Hour, cfg.Billing.WebhookDedupTTL)
	assert.False(t, cfg.Billing.DisableGuard)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TRIAL_DAYS", "14")
	t.Setenv("PROVIDER_TIMEOUT", "3s")
	t.Setenv("DISABLE_BILLING_GUARD", "TRUE")
	t.Setenv("FRONTEND_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("STORAGE_DRIVER", "Memory")

	cfg := Load()
	assert.Equal(t, 14, cfg.Billing.TrialDays)
	assert.Equal(t, 3*time.Second, cfg.Billing.ProviderTimeout)
	assert.True(t, cfg.Billing.DisableGuard)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.FrontendOrigins)
	assert.Equal(t, "memory", cfg.StorageDriver)
}

func TestBillingConfig_PriceLookup(t *testing.T) {
	b := BillingConfig{MonthlyPriceID: "price_m", YearlyPriceID: "price_y"}

	assert.Equal(t, "price_m", b.PriceIDForPlan(billing.PlanMonthly))
	assert.Equal(t, "price_y", b.PriceIDForPlan(billing.PlanYearly))
	assert.Empty(t, b.PriceIDForPlan(billing.PlanNone))

	plan, ok := b.PlanForPriceID("price_y")
	assert.True(t, ok)
	assert.Equal(t, billing.PlanYearly, plan)

	_, ok = b.PlanForPriceID("price_unknown")
	assert.False(t, ok)

	_, ok = BillingConfig{}.PlanForPriceID("")
	assert.False(t, ok)
}
