// internal/integration/stripe/errors.go
package stripe

import (
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v82"

	xerrors "entitlement-service/internal/pkg/errors"
)

// classify maps a Stripe API error onto the service error kinds.
func classify(err error, op string) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return xerrors.New(xerrors.ErrUpstream, "stripe: "+op).WithCause(err)
	}

	switch {
	case se.Type == stripe.ErrorTypeInvalidRequest && strings.Contains(se.Msg, "No configuration provided"):
		return xerrors.New(xerrors.ErrPortalUnavailable, "stripe: "+op).WithCause(err)
	case se.Type == stripe.ErrorTypeCard, se.HTTPStatusCode == http.StatusPaymentRequired:
		return xerrors.New(xerrors.ErrPaymentRequired, "stripe: "+op).WithCause(err)
	default:
		return xerrors.New(xerrors.ErrUpstream, "stripe: "+op).WithCause(err)
	}
}
