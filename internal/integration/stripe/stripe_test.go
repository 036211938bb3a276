package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"entitlement-service/internal/domain/billing"
	xerrors "entitlement-service/internal/pkg/errors"
)

const testSecret = "whsec_test_secret"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "portal not configured",
			err: &stripe.Error{
				Type:           stripe.ErrorTypeInvalidRequest,
				Msg:            "No configuration provided and your test mode default configuration has not been created.",
				HTTPStatusCode: http.StatusBadRequest,
			},
			want: xerrors.ErrPortalUnavailable,
		},
		{
			name: "card declined",
			err:  &stripe.Error{Type: stripe.ErrorTypeCard, Msg: "Your card was declined.", HTTPStatusCode: http.StatusPaymentRequired},
			want: xerrors.ErrPaymentRequired,
		},
		{
			name: "other invalid request",
			err:  &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, Msg: "No such price", HTTPStatusCode: http.StatusBadRequest},
			want: xerrors.ErrUpstream,
		},
		{
			name: "network failure",
			err:  errors.New("dial tcp: connection refused"),
			want: xerrors.ErrUpstream,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err, "op")
			assert.True(t, xerrors.Is(got, tt.want), "got %v", got)
			assert.True(t, errors.Is(got, tt.err))
		})
	}
}

func TestToProviderSubscription(t *testing.T) {
	sub := &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Created:  1767225600,
		TrialEnd: 1767830400,
		Customer: &stripe.Customer{ID: "cus_1"},
		Metadata: map[string]string{"userId": "u1", "plan": "monthly"},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					ID:                 "si_1",
					Price:              &stripe.Price{ID: "price_monthly"},
					CurrentPeriodStart: 1767225600,
					CurrentPeriodEnd:   1769904000,
				},
			},
		},
	}

	got := toProviderSubscription(sub)
	assert.Equal(t, "sub_1", got.ID)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.Equal(t, "si_1", got.ItemID)
	assert.Equal(t, "price_monthly", got.PriceID)
	assert.Equal(t, "u1", got.UserID())
	assert.Equal(t, time.Unix(1769904000, 0).UTC(), got.CurrentPeriodEnd)
	require.NotNil(t, got.TrialEnd)
	assert.Equal(t, time.Unix(1767830400, 0).UTC(), *got.TrialEnd)

	bare := toProviderSubscription(&stripe.Subscription{ID: "sub_2", Status: stripe.SubscriptionStatusCanceled})
	assert.Nil(t, bare.TrialEnd)
	assert.Empty(t, bare.PriceID)
	assert.True(t, bare.CurrentPeriodEnd.IsZero())
}

func signed(payload string) *webhook.SignedPayload {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
}

func TestEventVerifier(t *testing.T) {
	body := `{"id":"evt_1","object":"event","type":"checkout.session.completed","created":1767225600,` +
		`"data":{"object":{"id":"cs_1","object":"checkout.session","subscription":"sub_1"}}}`
	v := NewEventVerifier(testSecret)

	t.Run("valid signature", func(t *testing.T) {
		s := signed(body)
		event, err := v.Verify(s.Payload, s.Header)
		require.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, billing.EventCheckoutCompleted, event.Type)
		assert.JSONEq(t, `{"id":"cs_1","object":"checkout.session","subscription":"sub_1"}`, string(event.Data))
	})

	t.Run("tampered payload", func(t *testing.T) {
		s := signed(body)
		_, err := v.Verify([]byte(body+" "), s.Header)
		assert.Error(t, err)
	})

	t.Run("missing header", func(t *testing.T) {
		_, err := v.Verify([]byte(body), "")
		assert.Error(t, err)
	})

	t.Run("wrong secret", func(t *testing.T) {
		s := signed(body)
		_, err := NewEventVerifier("whsec_other").Verify(s.Payload, s.Header)
		assert.Error(t, err)
	})
}

func TestRedisEventDeduplicator(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	d := NewRedisEventDeduplicator(client, time.Hour)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.MarkProcessed(ctx, "evt_1"))
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	mr.FastForward(2 * time.Hour)
	seen, err = d.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}
