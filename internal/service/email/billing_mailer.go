// internal/service/email/billing_mailer.go
package email

import (
	"context"
	"fmt"
	"time"

	"entitlement-service/internal/domain/billing"
	"entitlement-service/internal/domain/user"

	"go.uber.org/zap"
)

const lookupTimeout = 5 * time.Second

// BillingMailer emails users about trial expiry and failed or canceled
// subscriptions. Delivery runs in the background so webhook handling never
// waits on SMTP.
type BillingMailer struct {
	sender Sender
	users  user.Directory
	brand  string
	logger *zap.Logger

	// async is false in tests so delivery is observable synchronously.
	async bool
}

func NewBillingMailer(sender Sender, users user.Directory, brand string, logger *zap.Logger) *BillingMailer {
	return &BillingMailer{sender: sender, users: users, brand: brand, logger: logger, async: true}
}

// NotifyEntitlementChanged mails on statuses that remove access.
func (m *BillingMailer) NotifyEntitlementChanged(userID string, rec *billing.SubscriptionRecord) {
	if rec == nil {
		return
	}

	var subject string
	var paragraphs []string
	switch rec.Status {
	case billing.StatusPaymentFailed:
		subject = "Your payment failed"
		paragraphs = []string{
			"We could not process the latest payment for your subscription, so premium access has been paused.",
			"Update your payment method in the billing portal to restore access.",
		}
	case billing.StatusCanceled:
		subject = "Your subscription has been canceled"
		paragraphs = []string{
			"Your subscription has ended and premium access is no longer active.",
			"You can subscribe again at any time from the billing page.",
		}
	default:
		return
	}

	m.dispatch(userID, subject, paragraphs)
}

// NotifyTrialWillEnd reminds the user before the trial converts or lapses.
func (m *BillingMailer) NotifyTrialWillEnd(userID string, trialEnd int64) {
	paragraphs := []string{"Your free trial is ending soon."}
	if trialEnd > 0 {
		paragraphs = []string{fmt.Sprintf("Your free trial ends on %s.", formatDate(time.Unix(trialEnd, 0)))}
	}
	paragraphs = append(paragraphs, "Choose a monthly or yearly plan to keep your premium features.")

	m.dispatch(userID, "Your trial is ending soon", paragraphs)
}

func (m *BillingMailer) dispatch(userID, subject string, paragraphs []string) {
	if m.async {
		go m.deliver(userID, subject, paragraphs)
		return
	}
	m.deliver(userID, subject, paragraphs)
}

func (m *BillingMailer) deliver(userID, subject string, paragraphs []string) {
	log := m.logger.With(zap.String("user_id", userID), zap.String("subject", subject))

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	u, err := m.users.FindByID(ctx, userID)
	if err != nil {
		log.Warn("billing email skipped: user lookup failed", zap.Error(err))
		return
	}
	if u.Email == "" {
		log.Warn("billing email skipped: user has no email")
		return
	}

	name := u.FullName
	if name == "" {
		name = "there"
	}
	body, err := render(message{Brand: m.brand, Name: name, Paragraphs: paragraphs})
	if err != nil {
		log.Error("failed to render billing email", zap.Error(err))
		return
	}

	if err := m.sender.Send(u.Email, subject, body); err != nil {
		log.Error("failed to send billing email", zap.Error(err))
		return
	}
	log.Info("billing email sent")
}
