// internal/service/billing/reconcile.go
package billing

import (
	"context"

	"go.uber.org/zap"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/metrics"
	xerrors "entitlement-service/internal/pkg/errors"
)

// subscriptionListLimit bounds the provider page read during reconciliation.
const subscriptionListLimit = 10

// Reconcile syncs the user's record with the provider and returns the
// resulting entitlement. Provider failures degrade to the last stored record.
// A user missing from the directory is treated as one without a customer.
func (s *Service) Reconcile(ctx context.Context, userID string) (*billing.EntitlementPayload, error) {
	u, err := s.findUser(ctx, userID)
	if err != nil && !xerrors.Is(err, xerrors.ErrNotFound) {
		return nil, err
	}

	rec, err := s.records.FindByUser(ctx, userID)
	if err != nil {
		return nil, xerrors.Wrap(err, "find subscription record")
	}

	customerID := u.CustomerID()
	if customerID == "" {
		metrics.ReconcileTotal.WithLabelValues("no_customer").Inc()
	} else {
		synced, err := s.syncFromProvider(ctx, userID, customerID, rec)
		if err != nil {
			s.logger.Warn("reconcile degraded to last known record",
				zap.String("user_id", userID),
				zap.String("customer_id", customerID),
				zap.Error(err))
			metrics.ReconcileTotal.WithLabelValues("degraded").Inc()
		} else {
			rec = synced
		}
	}

	rec = s.backfillStatus(ctx, rec)
	return s.projector.Project(rec), nil
}

// syncFromProvider upserts the record from the customer's authoritative
// subscription. It returns current unchanged when there is nothing to write.
func (s *Service) syncFromProvider(ctx context.Context, userID, customerID string, current *billing.SubscriptionRecord) (*billing.SubscriptionRecord, error) {
	pctx, cancel := s.providerContext(ctx)
	subs, err := s.provider.ListSubscriptions(pctx, customerID, subscriptionListLimit)
	cancel()
	if err != nil {
		return nil, xerrors.New(xerrors.ErrDegraded, "list provider subscriptions").WithCause(err)
	}

	sub := billing.SelectAuthoritative(subs)
	if sub == nil {
		metrics.ReconcileTotal.WithLabelValues("no_subscription").Inc()
		return current, nil
	}

	status := billing.MapProviderStatus(sub.Status)
	if status == billing.StatusCanceled && sub.TrialEnd != nil &&
		current != nil && current.Status == billing.StatusTrialExpired {
		status = billing.StatusTrialExpired
	}
	plan, known := s.cfg.PlanForPriceID(sub.PriceID)
	if status == billing.StatusActive && !known {
		s.logger.Warn("active subscription uses an unmapped price, not recording",
			zap.String("user_id", userID),
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("price_id", sub.PriceID))
		metrics.ReconcileTotal.WithLabelValues("unmapped_price").Inc()
		return current, nil
	}

	patch := subscriptionPatch(sub, plan, status)
	if status == billing.StatusTrialing {
		trialEnd := sub.TrialEnd
		if trialEnd == nil {
			window := ComputeTrial(s.now(), s.cfg.TrialDays, s.now())
			trialEnd = &window.EndsAt
		}
		patch.TrialEndsAt = trialEnd
		patch.TrialDays = ptr(s.cfg.TrialDays)
	}

	rec, applied, err := s.records.UpsertConditional(ctx, userID, patch, billing.NotDemotingActive(status))
	if err != nil {
		return nil, xerrors.Wrap(err, "upsert subscription record")
	}
	metrics.RecordWritesTotal.WithLabelValues("reconcile", writeResult(applied)).Inc()
	metrics.ReconcileTotal.WithLabelValues("synced").Inc()

	if applied && rec.Version == 1 {
		s.linkRecord(ctx, rec)
	}
	return rec, nil
}

// backfillStatus persists an inferred status for legacy records stored
// without one. On write failure the inferred status is still projected.
func (s *Service) backfillStatus(ctx context.Context, rec *billing.SubscriptionRecord) *billing.SubscriptionRecord {
	if rec == nil || rec.Status != billing.StatusUnknown {
		return rec
	}

	status, endsAt := InferStatus(rec, s.cfg.TrialDays, s.now())
	patch := billing.RecordPatch{Status: ptr(status), TrialEndsAt: ptr(endsAt)}

	updated, _, err := s.records.UpsertConditional(ctx, rec.UserID, patch, billing.StatusMissing)
	if err != nil {
		s.logger.Warn("failed to backfill subscription status",
			zap.String("user_id", rec.UserID),
			zap.Error(err))
		inferred := *rec
		patch.Apply(&inferred)
		return &inferred
	}
	return updated
}
