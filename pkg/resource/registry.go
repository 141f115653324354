package resource

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrUnknownResource is returned for names that do not map onto a Stripe resource.
var ErrUnknownResource = errors.New("unknown resource")

// Definition describes how a resource is addressed on the API.
type Definition struct {
	// Path is the collection path, e.g. "/v1/application_fees".
	Path string

	// Listable reports whether the collection supports cursor pagination.
	Listable bool
}

var definitions = map[string]Definition{
	"accounts":             {Path: "/v1/accounts", Listable: true},
	"application_fees":     {Path: "/v1/application_fees", Listable: true},
	"balance":              {Path: "/v1/balance", Listable: false},
	"balance_transactions": {Path: "/v1/balance_transactions", Listable: true},
	"charges":              {Path: "/v1/charges", Listable: true},
	"coupons":              {Path: "/v1/coupons", Listable: true},
	"customers":            {Path: "/v1/customers", Listable: true},
	"disputes":             {Path: "/v1/disputes", Listable: true},
	"events":               {Path: "/v1/events", Listable: true},
	"invoices":             {Path: "/v1/invoices", Listable: true},
	"payment_intents":      {Path: "/v1/payment_intents", Listable: true},
	"payouts":              {Path: "/v1/payouts", Listable: true},
	"plans":                {Path: "/v1/plans", Listable: true},
	"prices":               {Path: "/v1/prices", Listable: true},
	"products":             {Path: "/v1/products", Listable: true},
	"refunds":              {Path: "/v1/refunds", Listable: true},
	"subscriptions":        {Path: "/v1/subscriptions", Listable: true},
	"transfers":            {Path: "/v1/transfers", Listable: true},
}

// Lookup resolves a resource name. Both the snake_case API name
// ("application_fees") and the camelCase form ("applicationFees") are accepted.
func Lookup(name string) (Definition, error) {
	def, ok := definitions[Normalize(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownResource, name)
	}
	return def, nil
}

// LookupListable is Lookup restricted to resources supporting list calls.
func LookupListable(name string) (Definition, error) {
	def, err := Lookup(name)
	if err != nil {
		return Definition{}, err
	}
	if !def.Listable {
		return Definition{}, fmt.Errorf("%w: %q is not listable", ErrUnknownResource, name)
	}
	return def, nil
}

// Normalize converts a camelCase resource name to snake_case.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for i, r := range strings.TrimSpace(name) {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
