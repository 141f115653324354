package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Common errors returned by the client.
var (
	// ErrRemoteCall matches every failed call to the Stripe API: transport
	// failures and non-2xx responses alike.
	ErrRemoteCall = errors.New("stripe call failed")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrRateLimited is returned when a shared cooldown is longer than the client will wait.
	ErrRateLimited = errors.New("request blocked: rate limit cooldown active")
)

// ErrorClass represents a classification of API errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a failed Stripe call. Transport failures carry StatusCode 0
// and the underlying error in Err.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass

	// Fields of Stripe's error object.
	Type    string
	Code    string
	Param   string
	Message string

	// RequestID is the Request-Id response header, useful when contacting Stripe.
	RequestID string

	// ShouldRetry mirrors the Stripe-Should-Retry header when present.
	ShouldRetry *bool

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stripe %s error (status %d)", e.ErrorClass, e.StatusCode)
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrRemoteCall.
func (e *APIError) Is(target error) bool {
	return target == ErrRemoteCall
}

// Retryable reports whether the call may be repeated. Stripe's
// Stripe-Should-Retry header overrides the error class.
func (e *APIError) Retryable() bool {
	if e.ShouldRetry != nil {
		return *e.ShouldRetry
	}
	return shouldRetry(e.ErrorClass)
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// classifyStatus maps an HTTP status to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// errorEnvelope is Stripe's error response body.
type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Param   string `json:"param"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIError builds an APIError from a non-2xx response and its body.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		ErrorClass: classifyStatus(resp.StatusCode),
		RequestID:  resp.Header.Get("Request-Id"),
	}

	var env errorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Type = env.Error.Type
		apiErr.Code = env.Error.Code
		apiErr.Param = env.Error.Param
		apiErr.Message = env.Error.Message
	} else {
		apiErr.Message = resp.Status
	}

	switch resp.Header.Get("Stripe-Should-Retry") {
	case "true":
		v := true
		apiErr.ShouldRetry = &v
	case "false":
		v := false
		apiErr.ShouldRetry = &v
	}

	return apiErr
}
