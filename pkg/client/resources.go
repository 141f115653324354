package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Sternrassler/stripe-helpers/pkg/cache"
	"github.com/Sternrassler/stripe-helpers/pkg/resource"
	"github.com/google/uuid"
)

// List fetches one page of a resource collection, newest first.
// account selects a connected account via the Stripe-Account header ("" for the platform).
func (c *Client) List(ctx context.Context, name string, params resource.ListParams, account string) (*resource.Page, error) {
	def, err := resource.LookupListable(name)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     def.Path,
		resource: resource.Normalize(name),
		query:    params.Values(),
		account:  account,
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", name, err)
	}

	var page resource.Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("decode %s page: %w", name, err)
	}
	return &page, nil
}

// Retrieve fetches a single object by id. When Redis is configured the object
// is served from and stored in the object cache.
func (c *Client) Retrieve(ctx context.Context, name, id, account string) (resource.Item, error) {
	def, err := resource.Lookup(name)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("retrieve %s: id is required", name)
	}

	key := cache.CacheKey{Resource: resource.Normalize(name), ID: id, Account: account}

	if c.cache != nil {
		entry, err := c.cache.Get(ctx, key)
		switch {
		case err == nil:
			var item resource.Item
			if err := json.Unmarshal(entry.Data, &item); err == nil {
				c.logger.Debug().
					Str("resource", key.Resource).
					Str("id", id).
					Dur("age", entry.Age()).
					Msg("Object served from cache")
				return item, nil
			}
			if err := c.cache.Delete(ctx, key); err != nil {
				c.logger.Warn().Err(err).Str("resource", key.Resource).Msg("Failed to drop undecodable cache entry")
			}
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("resource", key.Resource).Msg("Cache get error")
		}
	}

	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     def.Path + "/" + url.PathEscape(id),
		resource: key.Resource,
		account:  account,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve %s %s: %w", name, id, err)
	}

	var item resource.Item
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", name, id, err)
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, key, cache.NewEntry(body, c.cache.TTL())); err != nil {
			c.logger.Warn().Err(err).Str("resource", key.Resource).Msg("Failed to cache object")
		}
	}

	return item, nil
}

// GetCharge fetches a charge, bypassing the object cache.
func (c *Client) GetCharge(ctx context.Context, id string) (*Charge, error) {
	if id == "" {
		return nil, fmt.Errorf("get charge: id is required")
	}

	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/v1/charges/" + url.PathEscape(id),
		resource: "charges",
	})
	if err != nil {
		return nil, fmt.Errorf("get charge %s: %w", id, err)
	}

	var charge Charge
	if err := json.Unmarshal(body, &charge); err != nil {
		return nil, fmt.Errorf("decode charge %s: %w", id, err)
	}
	return &charge, nil
}

// GetBalance fetches the balance of account ("" for the platform).
func (c *Client) GetBalance(ctx context.Context, account string) (*Balance, error) {
	body, err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/v1/balance",
		resource: "balance",
		account:  account,
	})
	if err != nil {
		return nil, fmt.Errorf("get balance: %w", err)
	}

	var balance Balance
	if err := json.Unmarshal(body, &balance); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return &balance, nil
}

// CreateRefund creates a refund. The request carries an idempotency key so
// retried attempts cannot refund twice.
func (c *Client) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	if params.Charge == "" {
		return nil, fmt.Errorf("create refund: charge is required")
	}

	key := params.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}

	body, err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           "/v1/refunds",
		resource:       "refunds",
		form:           params.form(),
		idempotencyKey: key,
	})
	if err != nil {
		return nil, fmt.Errorf("create refund for %s: %w", params.Charge, err)
	}

	var refund Refund
	if err := json.Unmarshal(body, &refund); err != nil {
		return nil, fmt.Errorf("decode refund: %w", err)
	}
	return &refund, nil
}

// form encodes the params the way Stripe expects them.
func (p RefundParams) form() url.Values {
	form := url.Values{}
	form.Set("charge", p.Charge)
	if p.Amount > 0 {
		form.Set("amount", strconv.FormatInt(p.Amount, 10))
	}
	if p.RefundApplicationFee != nil {
		form.Set("refund_application_fee", strconv.FormatBool(*p.RefundApplicationFee))
	}
	if p.ReverseTransfer != nil {
		form.Set("reverse_transfer", strconv.FormatBool(*p.ReverseTransfer))
	}
	if p.Reason != "" {
		form.Set("reason", p.Reason)
	}
	for k, v := range p.Metadata {
		form.Set("metadata["+k+"]", v)
	}
	return form
}
