// Package helpers bundles the Stripe convenience operations behind a single
// value constructed from an API key.
package helpers

import (
	"context"
	"fmt"

	"github.com/Sternrassler/stripe-helpers/pkg/client"
	"github.com/Sternrassler/stripe-helpers/pkg/pagination"
	"github.com/Sternrassler/stripe-helpers/pkg/refund"
	"github.com/Sternrassler/stripe-helpers/pkg/resolve"
	"github.com/Sternrassler/stripe-helpers/pkg/resource"
)

// Helpers exposes the date-window, limit, enrichment and safe refund
// operations. All of them share one client.
type Helpers struct {
	client   *client.Client
	fetcher  *pagination.Fetcher
	resolver *resolve.Resolver
	refunds  *refund.Service
}

// Options tunes the operations beyond the client configuration.
type Options struct {
	Pagination pagination.Config
	Resolve    resolve.Config
}

// DefaultOptions returns the default operation settings.
func DefaultOptions() Options {
	return Options{
		Pagination: pagination.DefaultConfig(),
		Resolve:    resolve.DefaultConfig(),
	}
}

// New creates helpers for apiKey with the default configuration.
func New(apiKey string) (*Helpers, error) {
	return NewWithConfig(client.DefaultConfig(apiKey))
}

// NewWithConfig creates helpers from a full client configuration.
func NewWithConfig(cfg client.Config) (*Helpers, error) {
	return NewWithOptions(cfg, DefaultOptions())
}

// NewWithOptions creates helpers from a client configuration and operation options.
func NewWithOptions(cfg client.Config, opts Options) (*Helpers, error) {
	c, err := client.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("create stripe client: %w", err)
	}
	return &Helpers{
		client:   c,
		fetcher:  pagination.NewFetcher(c, opts.Pagination),
		resolver: resolve.NewResolver(c, opts.Resolve),
		refunds:  refund.NewService(c),
	}, nil
}

// Client returns the underlying Stripe client for calls not covered here.
func (h *Helpers) Client() *client.Client {
	return h.client
}

// Close releases the client's idle connections.
func (h *Helpers) Close() error {
	return h.client.Close()
}

// GetBetweenDates returns the items of a resource created within window.
func (h *Helpers) GetBetweenDates(ctx context.Context, q pagination.DateQuery) ([]resource.Item, error) {
	return h.fetcher.BetweenDates(ctx, q)
}

// GetWithCustomLimit returns up to q.Limit of the newest items of a resource.
func (h *Helpers) GetWithCustomLimit(ctx context.Context, q pagination.LimitQuery) ([]resource.Item, error) {
	return h.fetcher.WithLimit(ctx, q)
}

// PopulateResource attaches the object each item references to a copy of the item.
func (h *Helpers) PopulateResource(ctx context.Context, items []resource.Item, spec resolve.Spec) ([]resource.Item, error) {
	return h.resolver.Populate(ctx, items, spec)
}

// SafeRefund refunds a destination charge after checking the connected
// account's balance.
func (h *Helpers) SafeRefund(ctx context.Context, req refund.Request) (*client.Refund, error) {
	return h.refunds.SafeRefund(ctx, req)
}
