package billing

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"entitlement-service/internal/config"
	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/domain/user"
	"entitlement-service/internal/repository/memory"
	"entitlement-service/internal/service/billing/billingtest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	priceMonthly = "price_monthly"
	priceYearly  = "price_yearly"
)

type fixture struct {
	svc      *Service
	records  *memory.SubscriptionRecordRepository
	users    *memory.UserRepository
	provider *billingtest.MockProvider
	notifier *billingtest.Notifier
}

func testBillingConfig() config.BillingConfig {
	return config.BillingConfig{
		MonthlyPriceID:    priceMonthly,
		YearlyPriceID:     priceYearly,
		MonthlyPriceCents: 999,
		YearlyPriceCents:  9999,
		TrialDays:         7,
		ProviderTimeout:   time.Second,
	}
}

func newFixture(t *testing.T, users ...*user.User) *fixture {
	t.Helper()
	f := &fixture{
		records:  memory.NewSubscriptionRecordRepository(),
		users:    memory.NewUserRepository(users...),
		provider: billingtest.NewMockProvider(),
		notifier: &billingtest.Notifier{},
	}
	f.svc = NewService(f.records, f.users, f.provider, testBillingConfig(), zap.NewNop(),
		WithClock(func() time.Time { return testNow }),
		WithNotifier(f.notifier),
	)
	return f
}

func newUser(id, customerID string) *user.User {
	u := &user.User{ID: id, Email: id + "@example.com", FullName: "Test " + id}
	if customerID != "" {
		u.StripeCustomerID = &customerID
	}
	return u
}

func providerSub(id, customerID, userID, status, priceID string) *billing.ProviderSubscription {
	return &billing.ProviderSubscription{
		ID:                 id,
		CustomerID:         customerID,
		Status:             status,
		ItemID:             "si_" + id,
		PriceID:            priceID,
		CurrentPeriodStart: testNow.Add(-24 * time.Hour),
		CurrentPeriodEnd:   testNow.Add(29 * 24 * time.Hour),
		Created:            testNow.Add(-24 * time.Hour),
		Metadata:           map[string]string{billing.MetadataUserID: userID},
	}
}

func activeRecord(userID string, plan billing.Plan, priceID string) billing.SubscriptionRecord {
	return billing.SubscriptionRecord{
		UserID:               userID,
		Plan:                 plan,
		Status:               billing.StatusActive,
		StripeSubscriptionID: "sub_1",
		StripePriceID:        priceID,
		TrialDays:            7,
		Version:              1,
		CreatedAt:            testNow.Add(-48 * time.Hour),
	}
}
