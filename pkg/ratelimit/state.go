// Package ratelimit tracks Stripe throttling (HTTP 429) and gates requests.
// After a 429 every client sharing the state backs off until a cooldown
// expires; with Redis configured the cooldown is shared across processes.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyThrottledUntil = "stripe:rate_limit:throttled_until"
	RedisKeyConsecutive    = "stripe:rate_limit:consecutive"
	RedisKeyLastUpdate     = "stripe:rate_limit:last_update"
)

// Cooldown tuning.
const (
	// BaseCooldown is the pause after a single 429.
	BaseCooldown = 500 * time.Millisecond

	// MaxCooldown caps the exponential cooldown.
	MaxCooldown = 30 * time.Second

	// ConsecutiveWindow is how long a 429 counts towards the consecutive streak.
	ConsecutiveWindow = 60 * time.Second

	// DefaultMaxWait is how long a request will wait for a cooldown before
	// it is rejected instead.
	DefaultMaxWait = 10 * time.Second
)

// RateLimitState is the shared throttle state.
type RateLimitState struct {
	// ThrottledUntil is when the current cooldown ends. Zero when not throttled.
	ThrottledUntil time.Time `json:"throttled_until"`

	// Consecutive counts 429 responses seen within ConsecutiveWindow.
	Consecutive int `json:"consecutive"`

	// LastUpdate is when a 429 was last recorded.
	LastUpdate time.Time `json:"last_update"`

	// IsHealthy is true when no cooldown is active.
	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *RateLimitState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// NeedsCriticalBlock reports whether the remaining cooldown exceeds maxWait,
// in which case requests are rejected rather than delayed.
func (s *RateLimitState) NeedsCriticalBlock(maxWait time.Duration) bool {
	return s.TimeUntilReset() > maxWait
}

// NeedsThrottling reports whether requests must wait for the cooldown.
func (s *RateLimitState) NeedsThrottling(maxWait time.Duration) bool {
	return s.TimeUntilReset() > 0 && !s.NeedsCriticalBlock(maxWait)
}

// TimeUntilReset returns the remaining cooldown, or 0 if none.
func (s *RateLimitState) TimeUntilReset() time.Duration {
	if s.ThrottledUntil.IsZero() {
		return 0
	}
	d := time.Until(s.ThrottledUntil)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy.
func (s *RateLimitState) UpdateHealth() {
	s.IsHealthy = s.TimeUntilReset() == 0
}

// CooldownFor returns the cooldown after the n-th consecutive 429.
// A server supplied Retry-After wins when it is longer.
func CooldownFor(consecutive int, retryAfter time.Duration) time.Duration {
	if consecutive < 1 {
		consecutive = 1
	}
	cooldown := BaseCooldown
	for i := 1; i < consecutive && cooldown < MaxCooldown; i++ {
		cooldown *= 2
	}
	if cooldown > MaxCooldown {
		cooldown = MaxCooldown
	}
	if retryAfter > cooldown {
		cooldown = retryAfter
	}
	return cooldown
}
