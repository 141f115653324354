package cache

import (
	"strings"
)

// CacheKey identifies a cached Stripe object.
type CacheKey struct {
	// Resource is the snake_case resource name (e.g. "charges")
	Resource string

	// ID is the object id (e.g. "ch_123")
	ID string

	// Account is the connected account the object was read through ("" for the platform)
	Account string
}

// String generates a deterministic cache key string.
// Format: stripe:resource:id[:acct=account]
//
// Example:
//
//	stripe:charges:ch_123:acct=acct_456
func (k CacheKey) String() string {
	parts := []string{"stripe", strings.Trim(k.Resource, "/"), k.ID}
	if k.Account != "" {
		parts = append(parts, "acct="+k.Account)
	}
	return strings.Join(parts, ":")
}
