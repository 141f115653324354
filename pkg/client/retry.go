package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	stripeRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	stripeRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stripe_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	stripeRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// ForErrorClass adapts the config to an error class.
// Rate limited requests start from a doubled backoff.
func (rc RetryConfig) ForErrorClass(errorClass ErrorClass) RetryConfig {
	if errorClass == ErrorClassRateLimit {
		rc.InitialBackoff *= 2
		if rc.InitialBackoff > rc.MaxBackoff {
			rc.InitialBackoff = rc.MaxBackoff
		}
	}
	return rc
}

// classifyForRetry returns the error class of err and whether it may be retried.
func classifyForRetry(err error) (ErrorClass, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass, apiErr.Retryable()
	}
	return "", false
}

// retryWithBackoff executes fn with exponential backoff retry logic.
// It respects context cancellation and adds jitter to prevent thundering herd.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var (
		lastErr    error
		errorClass ErrorClass
		backoff    time.Duration
	)

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("error_class", string(errorClass)).
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		}

		class, retryable := classifyForRetry(err)
		if !retryable {
			return lastErr
		}

		if attempt >= config.MaxAttempts {
			errorClass = class
			break
		}

		// Backoff restarts when the error class changes between attempts.
		if class != errorClass || backoff == 0 {
			backoff = config.ForErrorClass(class).InitialBackoff
		}
		errorClass = class

		stripeRetriesTotal.WithLabelValues(string(errorClass)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		stripeRetryBackoffSeconds.WithLabelValues(string(errorClass)).Observe(jitter.Seconds())

		log.Debug().
			Str("error_class", string(errorClass)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Str("error_class", string(errorClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	stripeRetryExhaustedTotal.WithLabelValues(string(errorClass)).Inc()
	log.Warn().
		Str("error_class", string(errorClass)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
