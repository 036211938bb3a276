// Package billingtest provides test doubles for the billing service.
package billingtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"entitlement-service/internal/domain/billing"
)

// MockProvider is a PaymentProvider that records calls and serves
// subscriptions from memory. Error fields inject failures.
type MockProvider struct {
	mu sync.Mutex

	// Subscriptions maps subscription id -> provider state.
	Subscriptions map[string]*billing.ProviderSubscription

	Customers     []CustomerCall
	CheckoutCalls []billing.CheckoutSessionRequest
	PortalCalls   []string
	PriceChanges  []billing.PriceChangeRequest
	Retrieved     []string

	CreateCustomerErr error
	CheckoutErr       error
	PortalErr         error
	GetErr            error
	ListErr           error
	UpdateErr         error

	nextCustomerSeq int
}

type CustomerCall struct {
	Email  string
	Name   string
	UserID string
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Subscriptions: make(map[string]*billing.ProviderSubscription)}
}

// AddSubscription registers sub so Get/List can return it.
func (m *MockProvider) AddSubscription(sub *billing.ProviderSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Subscriptions[sub.ID] = sub
}

func (m *MockProvider) CreateCustomer(_ context.Context, email, name, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateCustomerErr != nil {
		return "", m.CreateCustomerErr
	}
	m.nextCustomerSeq++
	m.Customers = append(m.Customers, CustomerCall{Email: email, Name: name, UserID: userID})
	return fmt.Sprintf("cus_mock_%d", m.nextCustomerSeq), nil
}

func (m *MockProvider) CreateCheckoutSession(_ context.Context, req *billing.CheckoutSessionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CheckoutErr != nil {
		return "", m.CheckoutErr
	}
	m.CheckoutCalls = append(m.CheckoutCalls, *req)
	return "https://checkout.stripe.test/c/" + req.CustomerID, nil
}

func (m *MockProvider) CreatePortalSession(_ context.Context, customerID, returnURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PortalErr != nil {
		return "", m.PortalErr
	}
	m.PortalCalls = append(m.PortalCalls, customerID)
	return "https://billing.stripe.test/p/" + customerID, nil
}

func (m *MockProvider) GetSubscription(_ context.Context, id string) (*billing.ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Retrieved = append(m.Retrieved, id)
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	sub, ok := m.Subscriptions[id]
	if !ok {
		return nil, fmt.Errorf("billingtest: no such subscription %s", id)
	}
	cp := *sub
	return &cp, nil
}

func (m *MockProvider) ListSubscriptions(_ context.Context, customerID string, limit int) ([]*billing.ProviderSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}
	var out []*billing.ProviderSubscription
	for _, sub := range m.Subscriptions {
		if sub.CustomerID != customerID {
			continue
		}
		cp := *sub
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockProvider) UpdateSubscriptionPrice(_ context.Context, req *billing.PriceChangeRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	m.PriceChanges = append(m.PriceChanges, *req)
	return nil
}

// Notifier records notifications.
type Notifier struct {
	mu        sync.Mutex
	Changed   []string
	TrialEnds []string
}

func (n *Notifier) NotifyEntitlementChanged(userID string, _ *billing.SubscriptionRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Changed = append(n.Changed, userID)
}

func (n *Notifier) NotifyTrialWillEnd(userID string, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.TrialEnds = append(n.TrialEnds, userID)
}

// Verifier accepts payloads whose signature equals Signature and decodes
// them as {"id", "type", "data": {"object": ...}}.
type Verifier struct {
	Signature string
}

var ErrBadSignature = errors.New("billingtest: signature mismatch")

func (v Verifier) Verify(payload []byte, signature string) (*billing.Event, error) {
	if signature != v.Signature {
		return nil, ErrBadSignature
	}
	var env struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	return &billing.Event{ID: env.ID, Type: env.Type, Data: env.Data.Object}, nil
}

// Event builds a webhook envelope around object.
func Event(id, eventType string, object any) []byte {
	b, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return b
}

// Dedup is an in-memory EventDeduplicator.
type Dedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *Dedup) Seen(_ context.Context, eventID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[eventID], nil
}

func (d *Dedup) MarkProcessed(_ context.Context, eventID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = make(map[string]bool)
	}
	d.seen[eventID] = true
	return nil
}
