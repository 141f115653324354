package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for throttle tracking.
var (
	stripeThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stripe_throttled_total",
		Help: "Total number of 429 responses recorded",
	})

	stripeRateLimitBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stripe_rate_limit_blocks_total",
		Help: "Total number of requests rejected because the cooldown exceeded the max wait",
	})

	stripeRateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stripe_rate_limit_waits_total",
		Help: "Total number of requests delayed by an active cooldown",
	})

	stripeCooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stripe_rate_limit_cooldown_seconds",
		Help: "Length of the most recently recorded cooldown",
	})
)

// Tracker records 429 responses and gates requests while a cooldown is active.
// With a nil Redis client the state is kept in process.
type Tracker struct {
	redis   *redis.Client
	logger  zerolog.Logger
	maxWait time.Duration

	mu    sync.Mutex
	local RateLimitState
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:   redisClient,
		logger:  logger,
		maxWait: DefaultMaxWait,
	}
}

// SetMaxWait changes how long a request may wait for a cooldown.
func (t *Tracker) SetMaxWait(d time.Duration) {
	t.maxWait = d
}

// GetState returns the current throttle state.
func (t *Tracker) GetState(ctx context.Context) (*RateLimitState, error) {
	if t.redis == nil {
		t.mu.Lock()
		state := t.local
		t.mu.Unlock()
		// Mirrors the expiry of the consecutive counter in Redis.
		if state.IsStale(ConsecutiveWindow) {
			state.Consecutive = 0
		}
		state.UpdateHealth()
		return &state, nil
	}

	untilMillis, err := t.redis.Get(ctx, RedisKeyThrottledUntil).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get throttled until: %w", err)
	}

	consecutive, err := t.redis.Get(ctx, RedisKeyConsecutive).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get consecutive throttles: %w", err)
	}

	lastUpdateMillis, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get last update: %w", err)
	}

	state := &RateLimitState{Consecutive: consecutive}
	if untilMillis > 0 {
		state.ThrottledUntil = time.UnixMilli(untilMillis)
	}
	if lastUpdateMillis > 0 {
		state.LastUpdate = time.UnixMilli(lastUpdateMillis)
	}
	state.UpdateHealth()

	return state, nil
}

// RecordThrottle registers a 429 response and starts a cooldown.
// It returns the cooldown that was applied.
func (t *Tracker) RecordThrottle(ctx context.Context, headers http.Header) (time.Duration, error) {
	retryAfter := parseRetryAfter(headers)
	now := time.Now()

	var (
		consecutive int
		cooldown    time.Duration
	)

	if t.redis == nil {
		t.mu.Lock()
		if t.local.LastUpdate.IsZero() || now.Sub(t.local.LastUpdate) > ConsecutiveWindow {
			t.local.Consecutive = 0
		}
		t.local.Consecutive++
		consecutive = t.local.Consecutive
		cooldown = CooldownFor(consecutive, retryAfter)
		t.local.ThrottledUntil = now.Add(cooldown)
		t.local.LastUpdate = now
		t.mu.Unlock()
	} else {
		pipe := t.redis.TxPipeline()
		incr := pipe.Incr(ctx, RedisKeyConsecutive)
		pipe.Expire(ctx, RedisKeyConsecutive, ConsecutiveWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("increment consecutive throttles: %w", err)
		}
		consecutive = int(incr.Val())
		cooldown = CooldownFor(consecutive, retryAfter)

		pipe = t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyThrottledUntil, now.Add(cooldown).UnixMilli(), cooldown)
		pipe.Set(ctx, RedisKeyLastUpdate, now.UnixMilli(), ConsecutiveWindow)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("store throttle state in redis: %w", err)
		}
	}

	stripeThrottledTotal.Inc()
	stripeCooldownSeconds.Set(cooldown.Seconds())

	t.logger.Warn().
		Int("consecutive", consecutive).
		Dur("cooldown", cooldown).
		Dur("retry_after", retryAfter).
		Msg("Stripe rate limit hit - cooling down")

	return cooldown, nil
}

// ShouldAllowRequest waits out a short cooldown and reports whether the
// request may proceed. It returns false without waiting when the remaining
// cooldown exceeds the tracker's max wait.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get rate limit state: %w", err)
	}

	if state.NeedsCriticalBlock(t.maxWait) {
		t.logger.Error().
			Int("consecutive", state.Consecutive).
			Dur("wait_duration", state.TimeUntilReset()).
			Msg("Stripe cooldown exceeds max wait - rejecting request")

		stripeRateLimitBlocksTotal.Inc()
		return false, nil
	}

	if state.NeedsThrottling(t.maxWait) {
		wait := state.TimeUntilReset()
		t.logger.Debug().
			Int("consecutive", state.Consecutive).
			Dur("wait_duration", wait).
			Msg("Stripe cooldown active - delaying request")

		stripeRateLimitWaitsTotal.Inc()

		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.C:
		}
	}

	return true, nil
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(headers http.Header) time.Duration {
	if headers == nil {
		return 0
	}
	v := headers.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
