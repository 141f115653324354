// Package client provides the Stripe HTTP client used by the helpers, with
// shared rate limit handling, retries, object caching and error classification.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/stripe-helpers/pkg/cache"
	"github.com/Sternrassler/stripe-helpers/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is Stripe's API host.
const DefaultBaseURL = "https://api.stripe.com"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 16 << 20

// Prometheus metrics for Stripe client operations.
var (
	stripeRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_requests_total",
		Help: "Total Stripe requests by resource and status",
	}, []string{"resource", "status"})

	stripeRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_request_duration_seconds",
		Help:    "Stripe request duration in seconds by resource, including retries",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"resource"})

	stripeErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_errors_total",
		Help: "Total Stripe errors by class",
	}, []string{"class"})
)

// Client is the Stripe API client.
// It is safe for concurrent use and holds no per-call state.
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	config      Config
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// APIKey is the secret (sk_) or restricted (rk_) key. Required.
	APIKey string

	// BaseURL of the API (default: https://api.stripe.com)
	BaseURL string

	// APIVersion pins the Stripe-Version header when set.
	APIVersion string

	// User-Agent header
	UserAgent string

	// Redis client for object caching and shared rate limit state (optional)
	Redis *redis.Client

	// CacheTTL is how long retrieved objects are cached (requires Redis)
	CacheTTL time.Duration

	// Timeout per HTTP attempt
	Timeout time.Duration

	// Retry policy
	Retry RetryConfig

	// MaxRateLimitWait is the longest a request waits for a shared cooldown
	MaxRateLimitWait time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:           apiKey,
		BaseURL:          DefaultBaseURL,
		UserAgent:        "stripe-helpers/0.1.0",
		CacheTTL:         cache.DefaultTTL,
		Timeout:          30 * time.Second,
		Retry:            DefaultRetryConfig(),
		MaxRateLimitWait: ratelimit.DefaultMaxWait,
	}
}

// New creates a new Stripe client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "stripe-client").Logger()

	rateLimiter := ratelimit.NewTracker(cfg.Redis, logger)
	if cfg.MaxRateLimitWait > 0 {
		rateLimiter.SetMaxWait(cfg.MaxRateLimitWait)
	}

	var cacheManager *cache.Manager
	if cfg.Redis != nil {
		cacheManager = cache.NewManager(cfg.Redis, cfg.CacheTTL)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		rateLimiter: rateLimiter,
		cache:       cacheManager,
		config:      cfg,
		logger:      logger,
	}, nil
}

// request describes one logical API call; it is turned into a fresh
// *http.Request on every attempt so bodies can be replayed.
type request struct {
	method         string
	path           string
	resource       string
	query          url.Values
	form           url.Values
	account        string
	idempotencyKey string
}

// do executes a call with rate limiting, retries and error classification
// and returns the raw response body of a 2xx response.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		stripeRequestDuration.WithLabelValues(r.resource).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("resource", r.resource).
		Str("method", r.method).
		Str("path", r.path).
		Str("account", r.account).
		Msg("Executing Stripe request")

	var body []byte

	retryErr := retryWithBackoff(ctx, c.config.Retry, func() error {
		// Every attempt honours the shared cooldown, including one recorded
		// by the previous attempt's 429.
		allowed, err := c.rateLimiter.ShouldAllowRequest(ctx)
		if err != nil {
			return fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			c.logger.Warn().
				Str("resource", r.resource).
				Msg("Request blocked by rate limiter")
			stripeRequestsTotal.WithLabelValues(r.resource, "rate_limited").Inc()
			return ErrRateLimited
		}

		req, err := c.newRequest(ctx, r)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Error().Err(err).Str("resource", r.resource).Msg("HTTP request failed")
			stripeErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			stripeRequestsTotal.WithLabelValues(r.resource, "network_error").Inc()
			return &APIError{
				ErrorClass: ErrorClassNetwork,
				Message:    "transport failure",
				Err:        err,
			}
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			stripeErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			return &APIError{
				StatusCode: resp.StatusCode,
				ErrorClass: ErrorClassNetwork,
				Message:    "read response body",
				Err:        err,
			}
		}

		stripeRequestsTotal.WithLabelValues(r.resource, strconv.Itoa(resp.StatusCode)).Inc()

		if resp.StatusCode >= 400 {
			apiErr := newAPIError(resp, data)
			stripeErrorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

			if apiErr.ErrorClass == ErrorClassRateLimit {
				if _, err := c.rateLimiter.RecordThrottle(ctx, resp.Header); err != nil {
					c.logger.Warn().Err(err).Msg("Failed to record throttle state")
				}
			}

			c.logger.Warn().
				Str("resource", r.resource).
				Int("status", resp.StatusCode).
				Str("error_class", string(apiErr.ErrorClass)).
				Str("code", apiErr.Code).
				Str("request_id", apiErr.RequestID).
				Msg("Stripe request error")

			return apiErr
		}

		body = data
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return body, nil
}

// newRequest builds the HTTP request for one attempt.
func (c *Client) newRequest(ctx context.Context, r request) (*http.Request, error) {
	target := c.config.BaseURL + r.path
	if len(r.query) > 0 {
		target += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.form != nil {
		body = bytes.NewBufferString(r.form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}
	if c.config.APIVersion != "" {
		req.Header.Set("Stripe-Version", c.config.APIVersion)
	}
	if r.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if r.account != "" {
		req.Header.Set("Stripe-Account", r.account)
	}
	if r.idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.idempotencyKey)
	}

	return req, nil
}

// Close releases idle connections. The Redis client is owned by the caller.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// Cache returns the object cache, or nil when Redis is not configured.
func (c *Client) Cache() *cache.Manager {
	return c.cache
}

// RateLimiter returns the shared throttle tracker.
func (c *Client) RateLimiter() *ratelimit.Tracker {
	return c.rateLimiter
}
