package client

import (
	"encoding/json"
	"strings"
)

// Reference is an id field that Stripe may return either as a bare id or,
// when expanded, as the full object.
type Reference string

// UnmarshalJSON accepts "id", {"id": "..."} and null.
func (r *Reference) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		*r = Reference(id)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = Reference(obj.ID)
	return nil
}

// Money is an amount in minor currency units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// TransferData describes the destination of a destination charge.
type TransferData struct {
	Amount      int64     `json:"amount"`
	Destination Reference `json:"destination"`
}

// Charge is the subset of a Stripe charge the helpers rely on.
type Charge struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Currency       string            `json:"currency"`
	Created        int64             `json:"created"`
	Refunded       bool              `json:"refunded"`
	Destination    Reference         `json:"destination"`
	TransferData   *TransferData     `json:"transfer_data"`
	ApplicationFee Reference         `json:"application_fee"`
	Metadata       map[string]string `json:"metadata"`
}

// DestinationAccount returns the connected account funds were sent to,
// preferring transfer_data over the legacy destination field.
func (c *Charge) DestinationAccount() string {
	if c.TransferData != nil && c.TransferData.Destination != "" {
		return string(c.TransferData.Destination)
	}
	return string(c.Destination)
}

// Balance is an account balance.
type Balance struct {
	Available []Money `json:"available"`
	Pending   []Money `json:"pending"`
	Livemode  bool    `json:"livemode"`
}

// AvailableIn returns the available balance in currency (case-insensitive).
func (b *Balance) AvailableIn(currency string) (Money, bool) {
	for _, m := range b.Available {
		if strings.EqualFold(m.Currency, currency) {
			return m, true
		}
	}
	return Money{}, false
}

// Refund is a created refund.
type Refund struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Charge   Reference         `json:"charge"`
	Currency string            `json:"currency"`
	Created  int64             `json:"created"`
	Status   string            `json:"status"`
	Reason   string            `json:"reason"`
	Metadata map[string]string `json:"metadata"`
}

// RefundParams are the arguments of a refund creation.
type RefundParams struct {
	// Charge is the id of the charge to refund.
	Charge string

	// Amount in minor units; zero refunds the full remaining amount.
	Amount int64

	// RefundApplicationFee and ReverseTransfer are omitted when nil.
	RefundApplicationFee *bool
	ReverseTransfer      *bool

	// Reason is one of Stripe's refund reasons
	// (duplicate, fraudulent, requested_by_customer). Optional.
	Reason string

	Metadata map[string]string

	// IdempotencyKey is generated when empty.
	IdempotencyKey string
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
