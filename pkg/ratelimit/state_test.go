package ratelimit

import (
	"testing"
	"time"
)

func TestRateLimitState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *RateLimitState
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &RateLimitState{LastUpdate: time.Now()},
			maxAge:   time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &RateLimitState{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.state.IsStale(tt.maxAge)
			if result != tt.expected {
				t.Errorf("IsStale() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestRateLimitState_BlockAndThrottle(t *testing.T) {
	maxWait := 5 * time.Second

	tests := []struct {
		name           string
		throttledUntil time.Time
		expectBlock    bool
		expectThrottle bool
		expectHealthy  bool
	}{
		{
			name:          "never throttled",
			expectHealthy: true,
		},
		{
			name:           "cooldown expired",
			throttledUntil: time.Now().Add(-time.Second),
			expectHealthy:  true,
		},
		{
			name:           "short cooldown - wait",
			throttledUntil: time.Now().Add(2 * time.Second),
			expectThrottle: true,
		},
		{
			name:           "long cooldown - block",
			throttledUntil: time.Now().Add(time.Minute),
			expectBlock:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &RateLimitState{ThrottledUntil: tt.throttledUntil}
			state.UpdateHealth()

			if got := state.NeedsCriticalBlock(maxWait); got != tt.expectBlock {
				t.Errorf("NeedsCriticalBlock() = %v, want %v", got, tt.expectBlock)
			}
			if got := state.NeedsThrottling(maxWait); got != tt.expectThrottle {
				t.Errorf("NeedsThrottling() = %v, want %v", got, tt.expectThrottle)
			}
			if state.IsHealthy != tt.expectHealthy {
				t.Errorf("IsHealthy = %v, want %v", state.IsHealthy, tt.expectHealthy)
			}
		})
	}
}

func TestRateLimitState_TimeUntilReset(t *testing.T) {
	state := &RateLimitState{ThrottledUntil: time.Now().Add(-time.Minute)}
	if d := state.TimeUntilReset(); d != 0 {
		t.Errorf("TimeUntilReset() = %v, want 0 for past cooldown", d)
	}

	state = &RateLimitState{ThrottledUntil: time.Now().Add(30 * time.Second)}
	d := state.TimeUntilReset()
	if d <= 25*time.Second || d > 30*time.Second {
		t.Errorf("TimeUntilReset() = %v, want ~30s", d)
	}
}

func TestCooldownFor(t *testing.T) {
	tests := []struct {
		name        string
		consecutive int
		retryAfter  time.Duration
		expected    time.Duration
	}{
		{"first throttle", 1, 0, BaseCooldown},
		{"zero treated as first", 0, 0, BaseCooldown},
		{"second doubles", 2, 0, 2 * BaseCooldown},
		{"third doubles again", 3, 0, 4 * BaseCooldown},
		{"capped", 50, 0, MaxCooldown},
		{"retry-after longer wins", 1, 3 * time.Second, 3 * time.Second},
		{"retry-after shorter ignored", 3, time.Millisecond, 4 * BaseCooldown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CooldownFor(tt.consecutive, tt.retryAfter); got != tt.expected {
				t.Errorf("CooldownFor(%d, %v) = %v, want %v", tt.consecutive, tt.retryAfter, got, tt.expected)
			}
		})
	}
}
