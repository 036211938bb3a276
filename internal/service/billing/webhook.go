// internal/service/billing/webhook.go
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/metrics"
	xerrors "entitlement-service/internal/pkg/errors"
)

// WebhookProcessor applies signed provider events to subscription records.
type WebhookProcessor struct {
	svc      *Service
	verifier billing.EventVerifier
	dedup    billing.EventDeduplicator
	logger   *zap.Logger
}

// NewWebhookProcessor builds a processor. dedup may be nil.
func NewWebhookProcessor(svc *Service, verifier billing.EventVerifier, dedup billing.EventDeduplicator, logger *zap.Logger) *WebhookProcessor {
	return &WebhookProcessor{
		svc:      svc,
		verifier: verifier,
		dedup:    dedup,
		logger:   logger,
	}
}

// HandleWebhook verifies and applies one delivery. Only a signature failure
// is returned; processing failures are logged and counted, and the delivery
// is still acknowledged.
func (p *WebhookProcessor) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := p.verifier.Verify(payload, signature)
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return xerrors.New(xerrors.ErrInvalidSignature, "Webhook signature verification failed").WithCause(err)
	}

	start := time.Now()
	result := p.process(ctx, event)
	metrics.WebhookDuration.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
	metrics.WebhookEventsTotal.WithLabelValues(event.Type, result).Inc()
	return nil
}

func (p *WebhookProcessor) process(ctx context.Context, event *billing.Event) string {
	log := p.logger.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	if p.dedup != nil && event.ID != "" {
		seen, err := p.dedup.Seen(ctx, event.ID)
		if err != nil {
			log.Warn("event dedup lookup failed, processing anyway", zap.Error(err))
		} else if seen {
			log.Debug("duplicate event delivery")
			return "duplicate"
		}
	}

	if err := p.Apply(ctx, event); err != nil {
		log.Error("webhook event processing failed", zap.Error(err))
		return "failed"
	}

	if p.dedup != nil && event.ID != "" {
		if err := p.dedup.MarkProcessed(ctx, event.ID); err != nil {
			log.Warn("failed to record processed event", zap.Error(err))
		}
	}
	return "processed"
}

// Apply dispatches a verified event to its handler.
func (p *WebhookProcessor) Apply(ctx context.Context, event *billing.Event) error {
	switch event.Type {
	case billing.EventCheckoutCompleted:
		return p.handleCheckoutCompleted(ctx, event.Data)
	case billing.EventInvoicePaid, billing.EventInvoicePaymentSucceeded:
		return p.handleInvoicePaid(ctx, event.Data)
	case billing.EventInvoicePaymentFailed:
		return p.handleInvoicePaymentFailed(ctx, event.Data)
	case billing.EventSubscriptionUpdated:
		return p.handleSubscriptionUpdated(ctx, event.Data)
	case billing.EventSubscriptionDeleted:
		return p.handleSubscriptionDeleted(ctx, event.Data)
	case billing.EventTrialWillEnd:
		return p.handleTrialWillEnd(event.Data)
	default:
		p.logger.Debug("unhandled event type", zap.String("event_type", event.Type))
		return nil
	}
}

func (p *WebhookProcessor) handleCheckoutCompleted(ctx context.Context, data json.RawMessage) error {
	var session checkoutSessionObject
	if err := json.Unmarshal(data, &session); err != nil {
		return fmt.Errorf("decode checkout session: %w", err)
	}
	if session.Subscription == "" {
		p.logger.Info("checkout session has no subscription", zap.String("session_id", session.ID))
		return nil
	}
	return p.activate(ctx, string(session.Subscription), "checkout")
}

func (p *WebhookProcessor) handleInvoicePaid(ctx context.Context, data json.RawMessage) error {
	var inv invoiceObject
	if err := json.Unmarshal(data, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	subID := inv.subscriptionID()
	if subID == "" {
		p.logger.Info("invoice has no subscription", zap.String("invoice_id", inv.ID))
		return nil
	}
	if inv.AmountPaid == 0 {
		p.logger.Info("skipping zero-amount invoice",
			zap.String("invoice_id", inv.ID),
			zap.String("stripe_subscription_id", subID))
		return nil
	}
	return p.activate(ctx, subID, "invoice")
}

// activate marks the subscription's owner active from freshly fetched
// provider state, unless the stored record is already active.
func (p *WebhookProcessor) activate(ctx context.Context, subID, source string) error {
	sub, err := p.svc.fetchSubscription(ctx, subID)
	if err != nil {
		return err
	}

	userID := sub.UserID()
	if userID == "" {
		p.logger.Warn("subscription has no userId metadata", zap.String("stripe_subscription_id", sub.ID))
		return nil
	}

	switch billing.MapProviderStatus(sub.Status) {
	case billing.StatusActive, billing.StatusTrialing:
	default:
		p.logger.Info("subscription no longer active at provider, not activating",
			zap.String("user_id", userID),
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("stripe_status", sub.Status))
		return nil
	}

	plan, ok := p.svc.cfg.PlanForPriceID(sub.PriceID)
	if !ok {
		p.logger.Warn("subscription uses an unmapped price, not activating",
			zap.String("user_id", userID),
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("price_id", sub.PriceID))
		return nil
	}

	patch := subscriptionPatch(sub, plan, billing.StatusActive)
	patch.UpgradedAt = ptr(p.svc.now())

	rec, applied, err := p.svc.records.UpsertConditional(ctx, userID, patch, billing.StatusNot(billing.StatusActive))
	if err != nil {
		return xerrors.Wrap(err, "upsert subscription record")
	}
	metrics.RecordWritesTotal.WithLabelValues(source, writeResult(applied)).Inc()
	if !applied {
		p.logger.Debug("record already active", zap.String("user_id", userID))
		return nil
	}

	p.logger.Info("subscription activated",
		zap.String("user_id", userID),
		zap.String("source", source),
		zap.String("plan", string(plan)),
		zap.String("stripe_subscription_id", sub.ID),
		zap.String("stripe_status", sub.Status))

	if rec.Version == 1 {
		p.svc.linkRecord(ctx, rec)
	}
	p.svc.notifyChanged(rec)
	return nil
}

func (p *WebhookProcessor) handleInvoicePaymentFailed(ctx context.Context, data json.RawMessage) error {
	var inv invoiceObject
	if err := json.Unmarshal(data, &inv); err != nil {
		return fmt.Errorf("decode invoice: %w", err)
	}
	subID := inv.subscriptionID()
	if subID == "" {
		return nil
	}

	sub, err := p.svc.fetchSubscription(ctx, subID)
	if err != nil {
		return err
	}
	userID := sub.UserID()
	if userID == "" {
		return nil
	}

	return p.terminal(ctx, userID, billing.StatusPaymentFailed, billing.RecordPatch{Plan: ptr(billing.PlanNone)})
}

func (p *WebhookProcessor) handleSubscriptionUpdated(ctx context.Context, data json.RawMessage) error {
	var obj subscriptionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	if obj.Status == billing.ProviderStatusTrialing {
		return nil
	}

	sub, err := p.svc.fetchSubscription(ctx, obj.ID)
	if err != nil {
		return err
	}
	if sub.Status != billing.ProviderStatusActive {
		p.logger.Debug("subscription update is not an active plan change",
			zap.String("stripe_subscription_id", sub.ID),
			zap.String("stripe_status", sub.Status))
		return nil
	}

	userID := sub.UserID()
	if userID == "" {
		return nil
	}

	current, err := p.svc.records.FindByUser(ctx, userID)
	if err != nil {
		return xerrors.Wrap(err, "find subscription record")
	}
	if current == nil {
		return nil
	}
	if current.Status.ClearsPlan() {
		p.logger.Debug("record is not on a plan, leaving activation to invoice events",
			zap.String("user_id", userID),
			zap.String("status", string(current.Status)))
		return nil
	}

	plan, ok := p.svc.cfg.PlanForPriceID(sub.PriceID)
	if !ok {
		p.logger.Warn("subscription updated to an unmapped price",
			zap.String("user_id", userID),
			zap.String("price_id", sub.PriceID))
		return nil
	}
	if current.Plan == plan && current.StripePriceID == sub.PriceID {
		p.logger.Debug("no plan switch detected", zap.String("user_id", userID))
		return nil
	}

	patch := billing.RecordPatch{
		Plan:                 ptr(plan),
		StripeSubscriptionID: ptr(sub.ID),
		StripePriceID:        ptr(sub.PriceID),
	}
	if !sub.CurrentPeriodStart.IsZero() {
		patch.CurrentPeriodStart = ptr(sub.CurrentPeriodStart)
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		patch.CurrentPeriodEnd = ptr(sub.CurrentPeriodEnd)
	}

	rec, applied, err := p.svc.records.UpsertConditional(ctx, userID, patch, billing.KeepsPlan)
	if err != nil {
		return xerrors.Wrap(err, "upsert subscription record")
	}
	metrics.RecordWritesTotal.WithLabelValues("plan_switch", writeResult(applied)).Inc()
	if !applied {
		return nil
	}

	p.logger.Info("plan switched",
		zap.String("user_id", userID),
		zap.String("from_plan", string(current.Plan)),
		zap.String("to_plan", string(plan)))
	p.svc.notifyChanged(rec)
	return nil
}

func (p *WebhookProcessor) handleSubscriptionDeleted(ctx context.Context, data json.RawMessage) error {
	var obj subscriptionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	userID := obj.Metadata[billing.MetadataUserID]
	if userID == "" {
		return nil
	}

	trialExpired := obj.TrialEnd != 0 && obj.Status == billing.ProviderStatusCanceled
	status := billing.StatusCanceled
	patch := billing.RecordPatch{Plan: ptr(billing.PlanNone)}
	if trialExpired {
		status = billing.StatusTrialExpired
	} else {
		patch.CanceledAt = ptr(p.svc.now())
	}

	return p.terminal(ctx, userID, status, patch)
}

// terminal applies a provider-confirmed transition unconditionally. Listeners
// are only told when the stored status actually changes.
func (p *WebhookProcessor) terminal(ctx context.Context, userID string, status billing.SubscriptionStatus, patch billing.RecordPatch) error {
	before, err := p.svc.records.FindByUser(ctx, userID)
	if err != nil {
		return xerrors.Wrap(err, "find subscription record")
	}

	err = p.svc.records.UpdateStatus(ctx, userID, status, patch)
	if xerrors.Is(err, xerrors.ErrNotFound) {
		p.logger.Info("no subscription record for terminal transition",
			zap.String("user_id", userID),
			zap.String("status", string(status)))
		return nil
	}
	if err != nil {
		return xerrors.Wrap(err, "update subscription status")
	}
	metrics.RecordWritesTotal.WithLabelValues("terminal", "applied").Inc()

	p.logger.Info("subscription status updated",
		zap.String("user_id", userID),
		zap.String("status", string(status)))

	if before != nil && before.Status == status {
		return nil
	}
	if rec, err := p.svc.records.FindByUser(ctx, userID); err == nil && rec != nil {
		p.svc.notifyChanged(rec)
	}
	return nil
}

func (p *WebhookProcessor) handleTrialWillEnd(data json.RawMessage) error {
	var obj subscriptionObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}
	userID := obj.Metadata[billing.MetadataUserID]
	p.logger.Info("trial will end",
		zap.String("user_id", userID),
		zap.String("stripe_subscription_id", obj.ID),
		zap.Int64("trial_end", obj.TrialEnd))
	if userID != "" {
		p.svc.notifyTrialWillEnd(userID, obj.TrialEnd)
	}
	return nil
}
