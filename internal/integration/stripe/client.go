// internal/integration/stripe/client.go
package stripe

import (
	"context"
	"time"

	"github.com/stripe/stripe-go/v82"
	"go.uber.org/zap"

	"entitlement-service/internal/domain/billing"
)

// Client implements billing.PaymentProvider on top of the Stripe API.
type Client struct {
	sc     *stripe.Client
	logger *zap.Logger
}

// NewClient creates a Stripe-backed payment provider.
func NewClient(secretKey string, logger *zap.Logger) *Client {
	return &Client{
		sc:     stripe.NewClient(secretKey, nil),
		logger: logger,
	}
}

func (c *Client) CreateCustomer(ctx context.Context, email, name, userID string) (string, error) {
	params := &stripe.CustomerCreateParams{
		Email: stripe.String(email),
		Name:  stripe.String(name),
		Metadata: map[string]string{
			billing.MetadataUserID: userID,
		},
	}

	cust, err := c.sc.V1Customers.Create(ctx, params)
	if err != nil {
		return "", classify(err, "create customer")
	}

	c.logger.Info("stripe customer created",
		zap.String("user_id", userID),
		zap.String("customer_id", cust.ID))
	return cust.ID, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req *billing.CheckoutSessionRequest) (string, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode:                     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:                 stripe.String(req.CustomerID),
		SuccessURL:               stripe.String(req.SuccessURL),
		CancelURL:                stripe.String(req.CancelURL),
		PaymentMethodTypes:       stripe.StringSlice([]string{"card"}),
		BillingAddressCollection: stripe.String("auto"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: map[string]string{
				billing.MetadataUserID: req.UserID,
				billing.MetadataPlan:   string(req.Plan),
			},
		},
	}

	session, err := c.sc.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return "", classify(err, "create checkout session")
	}
	return session.URL, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := c.sc.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return "", classify(err, "create billing portal session")
	}
	return session.URL, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*billing.ProviderSubscription, error) {
	sub, err := c.sc.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return nil, classify(err, "retrieve subscription")
	}
	return toProviderSubscription(sub), nil
}

// ListSubscriptions returns up to limit subscriptions of any status.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string, limit int) ([]*billing.ProviderSubscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Limit = stripe.Int64(int64(limit))

	out := make([]*billing.ProviderSubscription, 0, limit)
	for sub, err := range c.sc.V1Subscriptions.List(ctx, params) {
		if err != nil {
			return nil, classify(err, "list subscriptions")
		}
		out = append(out, toProviderSubscription(sub))
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// UpdateSubscriptionPrice swaps the single item's price with prorations.
// The provider rejects the change if the prorated charge cannot be paid.
func (c *Client) UpdateSubscriptionPrice(ctx context.Context, req *billing.PriceChangeRequest) error {
	params := &stripe.SubscriptionUpdateParams{
		Items: []*stripe.SubscriptionUpdateItemParams{
			{
				ID:    stripe.String(req.ItemID),
				Price: stripe.String(req.NewPriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
		PaymentBehavior:   stripe.String("error_if_incomplete"),
		Metadata:          req.Metadata,
	}

	if _, err := c.sc.V1Subscriptions.Update(ctx, req.SubscriptionID, params); err != nil {
		return classify(err, "update subscription")
	}
	return nil
}

func toProviderSubscription(sub *stripe.Subscription) *billing.ProviderSubscription {
	out := &billing.ProviderSubscription{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Created:  unix(sub.Created),
		Metadata: sub.Metadata,
	}
	if sub.Customer != nil {
		out.CustomerID = sub.Customer.ID
	}
	if sub.TrialEnd != 0 {
		t := unix(sub.TrialEnd)
		out.TrialEnd = &t
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		out.ItemID = item.ID
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		if item.CurrentPeriodStart != 0 {
			out.CurrentPeriodStart = unix(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd != 0 {
			out.CurrentPeriodEnd = unix(item.CurrentPeriodEnd)
		}
	}
	return out
}

func unix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
