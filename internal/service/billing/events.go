// internal/service/billing/events.go
package billing

import (
	"bytes"
	"encoding/json"
)

// expandableID decodes a provider reference that is either a bare id or an
// expanded object carrying an "id".
type expandableID string

func (e *expandableID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = expandableID(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*e = expandableID(obj.ID)
	return nil
}

type checkoutSessionObject struct {
	ID           string       `json:"id"`
	Mode         string       `json:"mode"`
	Customer     expandableID `json:"customer"`
	Subscription expandableID `json:"subscription"`
}

type invoiceObject struct {
	ID           string       `json:"id"`
	AmountPaid   int64        `json:"amount_paid"`
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription expandableID `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	Lines struct {
		Data []invoiceLine `json:"data"`
	} `json:"lines"`
}

type invoiceLine struct {
	Subscription expandableID `json:"subscription"`
	Parent       *struct {
		SubscriptionItemDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_item_details"`
	} `json:"parent"`
}

// subscriptionID resolves the invoice's subscription: invoice parent first,
// then the first line item's parent, then the legacy top-level fields.
func (inv *invoiceObject) subscriptionID() string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != "" {
		return string(inv.Parent.SubscriptionDetails.Subscription)
	}
	if len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		if line.Parent != nil && line.Parent.SubscriptionItemDetails != nil && line.Parent.SubscriptionItemDetails.Subscription != "" {
			return line.Parent.SubscriptionItemDetails.Subscription
		}
	}
	if inv.Subscription != "" {
		return string(inv.Subscription)
	}
	if len(inv.Lines.Data) > 0 {
		return string(inv.Lines.Data[0].Subscription)
	}
	return ""
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	TrialEnd int64             `json:"trial_end"`
	Metadata map[string]string `json:"metadata"`
}
