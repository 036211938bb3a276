// internal/service/billing/plan_change.go
package billing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/metrics"
	xerrors "entitlement-service/internal/pkg/errors"
)

const (
	msgInvalidPlan          = "Invalid subscription plan"
	msgAlreadyActive        = "You already have an active subscription"
	msgPriceNotConfigured   = "Subscription PriceId configure error"
	msgCustomerNotFound     = "User or Stripe customer not found"
	msgPortalUnavailable    = "Billing portal is not available. Please contact support"
	msgNoSubscriptionToSwap = "You don't have an active subscription to switch"
	msgPaymentDeclined      = "Your payment method was declined. Update it in the billing portal and try again"
)

// BeginUpgrade creates a checkout session for plan and returns its URL.
func (s *Service) BeginUpgrade(ctx context.Context, userID string, plan billing.Plan, callbackURL string) (string, error) {
	checkoutURL, err := s.beginUpgrade(ctx, userID, plan, callbackURL)
	metrics.PlanChangesTotal.WithLabelValues("upgrade", outcome(err)).Inc()
	return checkoutURL, err
}

func (s *Service) beginUpgrade(ctx context.Context, userID string, plan billing.Plan, callbackURL string) (string, error) {
	if !plan.IsValid() {
		return "", xerrors.New(xerrors.ErrBadRequest, msgInvalidPlan)
	}

	u, err := s.findUser(ctx, userID)
	if err != nil {
		return "", err
	}

	rec, err := s.records.FindByUser(ctx, userID)
	if err != nil {
		return "", xerrors.Wrap(err, "find subscription record")
	}
	if rec.IsActive() {
		return "", xerrors.New(xerrors.ErrUnauthorized, msgAlreadyActive)
	}

	priceID := s.cfg.PriceIDForPlan(plan)
	if priceID == "" {
		return "", xerrors.New(xerrors.ErrConfiguration, msgPriceNotConfigured)
	}

	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	customerID := u.CustomerID()
	if customerID == "" {
		customerID, err = s.provider.CreateCustomer(pctx, u.Email, u.FullName, u.ID)
		if err != nil {
			return "", xerrors.New(xerrors.ErrUpstream, msgProviderFailed).WithCause(err)
		}
		if err := s.users.UpdateStripeCustomerID(ctx, u.ID, customerID); err != nil {
			return "", xerrors.Wrap(err, "persist stripe customer id")
		}
		s.logger.Info("created stripe customer",
			zap.String("user_id", u.ID),
			zap.String("customer_id", customerID))
	}

	checkoutURL, err := s.provider.CreateCheckoutSession(pctx, &billing.CheckoutSessionRequest{
		CustomerID: customerID,
		PriceID:    priceID,
		Plan:       plan,
		UserID:     u.ID,
		SuccessURL: appendQuery(callbackURL, "success=true&plan="+url.QueryEscape(string(plan))),
		CancelURL:  appendQuery(callbackURL, "success=false"),
	})
	if err != nil {
		return "", xerrors.New(xerrors.ErrUpstream, msgProviderFailed).WithCause(err)
	}
	return checkoutURL, nil
}

// OpenBillingPortal creates a self-service portal session for the user.
func (s *Service) OpenBillingPortal(ctx context.Context, userID, callbackURL string) (string, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return "", xerrors.Wrap(err, "find user")
	}
	if u == nil || u.CustomerID() == "" {
		metrics.PlanChangesTotal.WithLabelValues("portal", "rejected").Inc()
		return "", xerrors.New(xerrors.ErrNotFound, msgCustomerNotFound)
	}

	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	portalURL, err := s.provider.CreatePortalSession(pctx, u.CustomerID(), callbackURL)
	if err != nil {
		s.logger.Error("failed to create billing portal session",
			zap.String("user_id", userID),
			zap.Error(err))
		metrics.PlanChangesTotal.WithLabelValues("portal", "failed").Inc()
		if xerrors.Is(err, xerrors.ErrPortalUnavailable) {
			return "", xerrors.New(xerrors.ErrPortalUnavailable, msgPortalUnavailable).WithCause(err)
		}
		return "", xerrors.New(xerrors.ErrUpstream, msgProviderFailed).WithCause(err)
	}

	metrics.PlanChangesTotal.WithLabelValues("portal", "ok").Inc()
	return portalURL, nil
}

// SwitchPlan asks the provider to move the user's subscription to newPlan.
// The change is confirmed later by a subscription update event or a reconcile.
func (s *Service) SwitchPlan(ctx context.Context, userID string, newPlan billing.Plan) (*billing.SwitchPlanResponse, error) {
	resp, err := s.switchPlan(ctx, userID, newPlan)
	metrics.PlanChangesTotal.WithLabelValues("switch", outcome(err)).Inc()
	return resp, err
}

func (s *Service) switchPlan(ctx context.Context, userID string, newPlan billing.Plan) (*billing.SwitchPlanResponse, error) {
	if !newPlan.IsValid() {
		return nil, xerrors.New(xerrors.ErrBadRequest, msgInvalidPlan)
	}

	rec, err := s.records.FindByUser(ctx, userID)
	if err != nil {
		return nil, xerrors.Wrap(err, "find subscription record")
	}
	if !rec.HasPaidSubscription() {
		return nil, xerrors.New(xerrors.ErrUnauthorized, msgNoSubscriptionToSwap)
	}
	if rec.Plan == newPlan {
		return nil, xerrors.Newf(xerrors.ErrBadRequest, "You are already on the %s plan", newPlan)
	}

	priceID := s.cfg.PriceIDForPlan(newPlan)
	if priceID == "" {
		return nil, xerrors.New(xerrors.ErrConfiguration, msgPriceNotConfigured)
	}

	sub, err := s.fetchSubscription(ctx, rec.StripeSubscriptionID)
	if err != nil {
		return nil, xerrors.New(xerrors.ErrUpstream, msgProviderFailed).WithCause(err)
	}

	pctx, cancel := s.providerContext(ctx)
	defer cancel()

	err = s.provider.UpdateSubscriptionPrice(pctx, &billing.PriceChangeRequest{
		SubscriptionID: sub.ID,
		ItemID:         sub.ItemID,
		NewPriceID:     priceID,
		Metadata: map[string]string{
			billing.MetadataUserID: userID,
			billing.MetadataPlan:   string(newPlan),
		},
	})
	if err != nil {
		s.logger.Warn("provider rejected plan switch",
			zap.String("user_id", userID),
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("new_plan", string(newPlan)),
			zap.Error(err))
		if xerrors.Is(err, xerrors.ErrPaymentRequired) {
			return nil, xerrors.New(xerrors.ErrPaymentRequired, msgPaymentDeclined).WithCause(err)
		}
		return nil, xerrors.New(xerrors.ErrUpstream, msgProviderFailed).WithCause(err)
	}

	s.logger.Info("plan switch requested",
		zap.String("user_id", userID),
		zap.String("stripe_subscription_id", sub.ID),
		zap.String("from_plan", string(rec.Plan)),
		zap.String("to_plan", string(newPlan)))

	return &billing.SwitchPlanResponse{
		Success: true,
		Message: fmt.Sprintf("Plan switch to %s is being processed", newPlan),
	}, nil
}

func appendQuery(base, query string) string {
	if strings.Contains(base, "?") {
		return base + "&" + query
	}
	return base + "?" + query
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case xerrors.Is(err, xerrors.ErrUpstream), xerrors.Is(err, xerrors.ErrPaymentRequired):
		return "failed"
	default:
		return "rejected"
	}
}
