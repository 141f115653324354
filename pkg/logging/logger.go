// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FromEnv builds a configuration from LOG_LEVEL and LOG_PRETTY, falling
// back to DefaultConfig for unset or unparsable values.
func FromEnv() Config {
	cfg := DefaultConfig()
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if pretty, err := strconv.ParseBool(os.Getenv("LOG_PRETTY")); err == nil {
		cfg.Pretty = pretty
	}
	return cfg
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, age)
//   - Request flow (method, path, account)
//   - Pagination stop reasons (empty page, exhausted collection)
//
// Info: Normal operation events
//   - Completed date window and limit fetches
//   - Submitted refunds
//   - Retries that eventually succeeded
//
// Warn: Warning conditions that don't prevent operation
//   - Stripe error responses
//   - Throttling (429) and rate limit cooldowns
//   - Cache errors (fallback to direct request)
//   - Rejected refunds and failed enrichments
//
// Error: Error conditions requiring attention
//   - Transport failures
//   - Pagination aborted at the page cap
//   - Configuration errors
//
// Context Fields:
//   - component: package emitting the entry
//   - resource: Stripe resource name (charges, application_fees, ...)
//   - account: connected account id (Stripe-Account)
//   - status: HTTP status code
//   - error_class: Error classification (client, server, rate_limit, network)
//   - code / request_id: Stripe error code and Request-Id
//   - page / pages / items: pagination progress
//   - charge_id / refund_id: refund flow identifiers
//   - duration: operation duration
