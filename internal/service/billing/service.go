// internal/service/billing/service.go
package billing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"entitlement-service/internal/config"
	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/domain/user"
	xerrors "entitlement-service/internal/pkg/errors"
)

const (
	msgUserNotFound   = "User not found"
	msgProviderFailed = "Something went wrong with the payment provider. Please try again"
)

// Service reconciles entitlements and orchestrates plan changes.
type Service struct {
	records   billing.RecordRepository
	users     user.Directory
	provider  billing.PaymentProvider
	notifiers []billing.Notifier
	cfg       config.BillingConfig
	projector *Projector
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithNotifier adds a notifier for entitlement changes. May be repeated.
func WithNotifier(n billing.Notifier) Option {
	return func(s *Service) { s.notifiers = append(s.notifiers, n) }
}

func NewService(
	records billing.RecordRepository,
	users user.Directory,
	provider billing.PaymentProvider,
	cfg config.BillingConfig,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		records:  records,
		users:    users,
		provider: provider,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.projector = NewProjector(NewPlanCatalog(cfg), cfg.TrialDays, s.now)
	return s
}

// Project exposes the projector for callers that already hold a record.
func (s *Service) Project(rec *billing.SubscriptionRecord) *billing.EntitlementPayload {
	return s.projector.Project(rec)
}

func (s *Service) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.ProviderTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.cfg.ProviderTimeout)
}

func (s *Service) fetchSubscription(ctx context.Context, id string) (*billing.ProviderSubscription, error) {
	pctx, cancel := s.providerContext(ctx)
	defer cancel()
	sub, err := s.provider.GetSubscription(pctx, id)
	if err != nil {
		return nil, xerrors.Wrap(err, "retrieve subscription "+id)
	}
	return sub, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*user.User, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			return nil, xerrors.New(xerrors.ErrNotFound, msgUserNotFound).WithCause(err)
		}
		return nil, xerrors.Wrap(err, "find user")
	}
	return u, nil
}

// subscriptionPatch copies the provider-sourced fields of sub into a patch.
func subscriptionPatch(sub *billing.ProviderSubscription, plan billing.Plan, status billing.SubscriptionStatus) billing.RecordPatch {
	patch := billing.RecordPatch{
		Plan:                 ptr(plan),
		Status:               ptr(status),
		StripeSubscriptionID: ptr(sub.ID),
		StripePriceID:        ptr(sub.PriceID),
	}
	if !sub.CurrentPeriodStart.IsZero() {
		patch.CurrentPeriodStart = ptr(sub.CurrentPeriodStart)
	}
	if !sub.CurrentPeriodEnd.IsZero() {
		patch.CurrentPeriodEnd = ptr(sub.CurrentPeriodEnd)
	}
	return patch
}

// linkRecord stores the record reference on the user. Failures are logged only.
func (s *Service) linkRecord(ctx context.Context, rec *billing.SubscriptionRecord) {
	if err := s.users.UpdateSubscriptionRef(ctx, rec.UserID, rec.ID); err != nil {
		s.logger.Warn("failed to link subscription record to user",
			zap.String("user_id", rec.UserID),
			zap.String("record_id", rec.ID),
			zap.Error(err))
	}
}

func (s *Service) notifyChanged(rec *billing.SubscriptionRecord) {
	if rec == nil {
		return
	}
	for _, n := range s.notifiers {
		n.NotifyEntitlementChanged(rec.UserID, rec)
	}
}

func (s *Service) notifyTrialWillEnd(userID string, trialEnd int64) {
	for _, n := range s.notifiers {
		n.NotifyTrialWillEnd(userID, trialEnd)
	}
}

func writeResult(applied bool) string {
	if applied {
		return "applied"
	}
	return "skipped"
}

func ptr[T any](v T) *T {
	return &v
}
