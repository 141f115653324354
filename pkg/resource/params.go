package resource

import (
	"net/url"
	"sort"
	"strconv"
)

// MaxPageSize is the largest page Stripe will return for a list call.
const MaxPageSize = 100

// ListParams holds the arguments of a single list call.
// It is a value: the With* methods return modified copies and never touch
// the receiver, so one ListParams can be shared between concurrent fetches.
type ListParams struct {
	// Limit is the page size (1-100).
	Limit int

	// StartingAfter is the cursor: the id of the last item of the previous page.
	StartingAfter string

	// Filters are passed through as additional query parameters
	// (e.g. "created[gte]", "customer").
	Filters map[string]string
}

// NewListParams returns params for the first page with the given size.
func NewListParams(limit int) ListParams {
	return ListParams{Limit: ClampPageSize(limit)}
}

// WithStartingAfter returns a copy positioned after the given cursor.
func (p ListParams) WithStartingAfter(cursor string) ListParams {
	next := p.clone()
	next.StartingAfter = cursor
	return next
}

// WithLimit returns a copy with a different page size.
func (p ListParams) WithLimit(limit int) ListParams {
	next := p.clone()
	next.Limit = ClampPageSize(limit)
	return next
}

// WithFilter returns a copy carrying an additional query filter.
func (p ListParams) WithFilter(key, value string) ListParams {
	next := p.clone()
	if next.Filters == nil {
		next.Filters = make(map[string]string, 1)
	}
	next.Filters[key] = value
	return next
}

// Values encodes the params as URL query values.
func (p ListParams) Values() url.Values {
	v := url.Values{}
	if p.Limit > 0 {
		v.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.StartingAfter != "" {
		v.Set("starting_after", p.StartingAfter)
	}

	keys := make([]string, 0, len(p.Filters))
	for k := range p.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v.Set(k, p.Filters[k])
	}
	return v
}

func (p ListParams) clone() ListParams {
	next := p
	if p.Filters != nil {
		next.Filters = make(map[string]string, len(p.Filters))
		for k, v := range p.Filters {
			next.Filters[k] = v
		}
	}
	return next
}

// ClampPageSize bounds a requested page size to [1, MaxPageSize],
// treating non-positive values as MaxPageSize.
func ClampPageSize(limit int) int {
	if limit <= 0 || limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}

// Page is one page of a Stripe list response.
type Page struct {
	Data    []Item `json:"data"`
	HasMore bool   `json:"has_more"`
}

// Last returns the last item of the page, or nil if the page is empty.
func (p *Page) Last() Item {
	if p == nil || len(p.Data) == 0 {
		return nil
	}
	return p.Data[len(p.Data)-1]
}
