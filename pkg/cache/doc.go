// Package cache stores Stripe objects fetched by id in Redis.
//
// Point lookups (retrieve-by-id) dominate resource resolution: enriching a
// collection of application fees with their charges issues one retrieve per
// fee, and repeated reports over overlapping windows fetch the same charges
// again. The manager keeps the raw JSON of each retrieved object for a fixed
// TTL so those lookups are served locally.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient, 5*time.Minute)
//
//	key := cache.CacheKey{Resource: "charges", ID: "ch_123"}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch from Stripe, then:
//		_ = manager.Set(ctx, key, cache.NewEntry(body, manager.TTL()))
//	}
//
// Objects fetched on behalf of a connected account are keyed by that account
// too, so the same id never leaks across accounts.
//
// # Metrics
//
//   - stripe_cache_hits_total - Cache hits
//   - stripe_cache_misses_total - Cache misses
//   - stripe_cache_size_bytes - Bytes written to the cache
//   - stripe_cache_errors_total{operation} - Cache operation errors
//
// Only immutable-enough objects should be cached; mutable reads (charges
// checked before a refund, balances) bypass the cache.
package cache
