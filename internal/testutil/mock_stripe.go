// Package testutil provides testing utilities for the Stripe helpers.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/stripe-helpers/pkg/resource"
)

// MockStripeResponse defines a canned response for a path.
type MockStripeResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is a request received by the mock.
type RecordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

type injectedFailure struct {
	resp      MockStripeResponse
	remaining int // <= 0 means unlimited
}

// MockStripe is an in-memory Stripe API for tests. Collections are served
// newest-first with limit/starting_after pagination like the real API.
type MockStripe struct {
	server *httptest.Server

	mu       sync.RWMutex
	objects  map[string][]resource.Item
	balances map[string]map[string]any
	handlers map[string]http.HandlerFunc
	failures map[string]*injectedFailure
	requests []RecordedRequest
	refunds  int

	// APIKey, when set, is required as the bearer token.
	APIKey string
}

// NewMockStripe creates and starts a mock Stripe server.
func NewMockStripe() *MockStripe {
	mock := &MockStripe{
		objects:  make(map[string][]resource.Item),
		balances: make(map[string]map[string]any),
		handlers: make(map[string]http.HandlerFunc),
		failures: make(map[string]*injectedFailure),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.serve))
	return mock
}

// URL returns the mock server URL.
func (m *MockStripe) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockStripe) Close() {
	m.server.Close()
}

// Reset clears recorded requests.
func (m *MockStripe) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

// SetObjects replaces a collection. Items are stored newest-first.
func (m *MockStripe) SetObjects(name string, items []resource.Item) {
	sorted := make([]resource.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created() > sorted[j].Created()
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[resource.Normalize(name)] = sorted
}

// SetBalance sets the available balance of an account ("" for the platform).
func (m *MockStripe) SetBalance(account string, available ...MockMoney) {
	entries := make([]map[string]any, 0, len(available))
	for _, a := range available {
		entries = append(entries, map[string]any{"amount": a.Amount, "currency": a.Currency})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[account] = map[string]any{
		"object":    "balance",
		"available": entries,
		"pending":   []map[string]any{},
		"livemode":  false,
	}
}

// MockMoney is an amount/currency pair for SetBalance.
type MockMoney struct {
	Amount   int64
	Currency string
}

// SetHandler sets a custom handler for a specific path.
func (m *MockStripe) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// FailPath makes the next times requests to path return resp (times <= 0: always).
func (m *MockStripe) FailPath(path string, resp MockStripeResponse, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[path] = &injectedFailure{resp: resp, remaining: times}
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockStripe) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// GetPathCount returns the number of requests made to path.
func (m *MockStripe) GetPathCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, r := range m.requests {
		if r.Path == path {
			n++
		}
	}
	return n
}

// Requests returns a copy of all recorded requests.
func (m *MockStripe) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RefundRequests returns the recorded refund creations.
func (m *MockStripe) RefundRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RecordedRequest
	for _, r := range m.requests {
		if r.Method == http.MethodPost && r.Path == "/v1/refunds" {
			out = append(out, r)
		}
	}
	return out
}

func (m *MockStripe) serve(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request_error", "parameter_invalid", err.Error())
		return
	}

	rec := RecordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Header: r.Header.Clone(),
	}
	if r.Method == http.MethodPost {
		rec.Form = r.PostForm
	}

	m.mu.Lock()
	m.requests = append(m.requests, rec)
	failure := m.failures[r.URL.Path]
	var injected *MockStripeResponse
	if failure != nil {
		resp := failure.resp
		injected = &resp
		if failure.remaining > 0 {
			failure.remaining--
			if failure.remaining == 0 {
				delete(m.failures, r.URL.Path)
			}
		}
	}
	handler, hasHandler := m.handlers[r.URL.Path]
	apiKey := m.APIKey
	m.mu.Unlock()

	if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
		WriteError(w, http.StatusUnauthorized, "invalid_request_error", "", "Invalid API Key provided")
		return
	}

	if injected != nil {
		writeCanned(w, *injected)
		return
	}

	if hasHandler {
		handler(w, r)
		return
	}

	m.defaultHandler(w, r)
}

func (m *MockStripe) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case r.Method == http.MethodGet && path == "balance":
		m.handleBalance(w, r)
	case r.Method == http.MethodPost && path == "refunds":
		m.handleCreateRefund(w, r)
	case r.Method == http.MethodGet && len(parts) == 1:
		m.handleList(w, r, parts[0])
	case r.Method == http.MethodGet && len(parts) == 2:
		m.handleRetrieve(w, parts[0], parts[1])
	default:
		WriteError(w, http.StatusNotFound, "invalid_request_error", "", "Unrecognized request URL")
	}
}

func (m *MockStripe) handleList(w http.ResponseWriter, r *http.Request, name string) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			WriteError(w, http.StatusBadRequest, "invalid_request_error", "parameter_invalid_integer", "Invalid limit")
			return
		}
		limit = n
	}

	m.mu.RLock()
	items := m.objects[name]
	m.mu.RUnlock()

	start := 0
	if cursor := r.URL.Query().Get("starting_after"); cursor != "" {
		start = -1
		for i, item := range items {
			if item.ID() == cursor {
				start = i + 1
				break
			}
		}
		if start < 0 {
			WriteError(w, http.StatusBadRequest, "invalid_request_error", "resource_missing",
				fmt.Sprintf("No such object: '%s'", cursor))
			return
		}
	}

	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	data := items[start:end]
	if data == nil {
		data = []resource.Item{}
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"object":   "list",
		"url":      "/v1/" + name,
		"has_more": end < len(items),
		"data":     data,
	})
}

func (m *MockStripe) handleRetrieve(w http.ResponseWriter, name, id string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, item := range m.objects[name] {
		if item.ID() == id {
			WriteJSON(w, http.StatusOK, item)
			return
		}
	}
	WriteError(w, http.StatusNotFound, "invalid_request_error", "resource_missing",
		fmt.Sprintf("No such %s: '%s'", strings.TrimSuffix(name, "s"), id))
}

func (m *MockStripe) handleBalance(w http.ResponseWriter, r *http.Request) {
	account := r.Header.Get("Stripe-Account")

	m.mu.RLock()
	balance, ok := m.balances[account]
	m.mu.RUnlock()

	if !ok {
		balance = map[string]any{
			"object":    "balance",
			"available": []map[string]any{},
			"pending":   []map[string]any{},
		}
	}
	WriteJSON(w, http.StatusOK, balance)
}

func (m *MockStripe) handleCreateRefund(w http.ResponseWriter, r *http.Request) {
	chargeID := r.PostForm.Get("charge")

	m.mu.Lock()
	defer m.mu.Unlock()

	var charge resource.Item
	for _, item := range m.objects["charges"] {
		if item.ID() == chargeID {
			charge = item
			break
		}
	}
	if charge == nil {
		WriteError(w, http.StatusNotFound, "invalid_request_error", "resource_missing",
			fmt.Sprintf("No such charge: '%s'", chargeID))
		return
	}

	amount := int64(0)
	switch v := charge["amount"].(type) {
	case float64:
		amount = int64(v)
	case int64:
		amount = v
	case int:
		amount = int64(v)
	}
	if v := r.PostForm.Get("amount"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request_error", "parameter_invalid_integer", "Invalid amount")
			return
		}
		amount = n
	}

	metadata := map[string]string{}
	for k, v := range r.PostForm {
		if strings.HasPrefix(k, "metadata[") && strings.HasSuffix(k, "]") && len(v) > 0 {
			metadata[strings.TrimSuffix(strings.TrimPrefix(k, "metadata["), "]")] = v[0]
		}
	}

	m.refunds++
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":       fmt.Sprintf("re_%d", m.refunds),
		"object":   "refund",
		"amount":   amount,
		"charge":   chargeID,
		"currency": charge.String("currency"),
		"created":  time.Now().Unix(),
		"status":   "succeeded",
		"metadata": metadata,
	})
}

func writeCanned(w http.ResponseWriter, resp MockStripeResponse) {
	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}
	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// WriteJSON writes v as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Request-Id", fmt.Sprintf("req_mock_%d", time.Now().UnixNano()))
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes a Stripe-shaped error response.
func WriteError(w http.ResponseWriter, status int, errType, code, message string) {
	WriteJSON(w, status, map[string]any{
		"error": map[string]any{
			"type":    errType,
			"code":    code,
			"message": message,
		},
	})
}

// NewItem builds an object with the given id, creation time and extra fields.
func NewItem(id string, created time.Time, fields map[string]any) resource.Item {
	item := resource.Item{
		"id":      id,
		"created": created.Unix(),
	}
	for k, v := range fields {
		item[k] = v
	}
	return item
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockStripeResponse {
	return MockStripeResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"type": "api_error", "message": "Internal server error"}}`,
	}
}

// NewRateLimitResponse creates a 429 response.
func NewRateLimitResponse() MockStripeResponse {
	return MockStripeResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"type": "invalid_request_error", "code": "rate_limit", "message": "Too many requests"}}`,
	}
}

// NewNotFoundResponse creates a 404 resource_missing response.
func NewNotFoundResponse() MockStripeResponse {
	return MockStripeResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": {"type": "invalid_request_error", "code": "resource_missing", "message": "No such object"}}`,
	}
}
