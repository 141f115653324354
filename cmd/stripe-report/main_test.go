package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/stripe-helpers/internal/testutil"
	"github.com/Sternrassler/stripe-helpers/pkg/resource"
)

func at(day int) time.Time {
	return time.Date(2018, 3, day, 15, 0, 0, 0, time.UTC)
}

func setupMockEnv(t *testing.T) *testutil.MockStripe {
	t.Helper()

	mock := testutil.NewMockStripe()
	t.Cleanup(mock.Close)

	mock.SetObjects("application_fees", []resource.Item{
		testutil.NewItem("fee_06", at(6), map[string]any{"originating_transaction": "ch_06"}),
		testutil.NewItem("fee_08", at(8), map[string]any{"originating_transaction": "ch_08"}),
		testutil.NewItem("fee_09", at(9), map[string]any{"originating_transaction": "ch_09"}),
		testutil.NewItem("fee_11", at(11), map[string]any{"originating_transaction": "ch_11"}),
	})
	mock.SetObjects("charges", []resource.Item{
		testutil.NewItem("ch_08", at(8), map[string]any{"amount": 800}),
		testutil.NewItem("ch_09", at(9), map[string]any{"amount": 900}),
	})

	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_API_BASE", mock.URL())
	t.Setenv("REDIS_URL", "")
	t.Setenv("METRICS_ADDR", "")
	return mock
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	healthHandler(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %s", string(body))
	}
}

func TestReadyEndpoint_WithoutRedis(t *testing.T) {
	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	readyHandler(nil)(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Result().StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	setupMockEnv(t)

	// a run registers and increments the request counters
	if err := run(context.Background(), []string{"-from", "2018-03-07", "-to", "2018-03-10"}, io.Discard); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	newMux(nil).ServeHTTP(w, req)

	resp := w.Result()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	bodyStr := string(body)
	if !strings.Contains(bodyStr, "# HELP") || !strings.Contains(bodyStr, "# TYPE") {
		t.Error("Expected Prometheus format metrics output")
	}
	for _, name := range []string{"stripe_requests_total", "stripe_pages_fetched_total"} {
		if !strings.Contains(bodyStr, name) {
			t.Errorf("Expected metrics output to contain %s", name)
		}
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{"date window", []string{"-from", "2018-03-07", "-to", "2018-03-10"}, false},
		{"limit only", []string{"-resource", "charges", "-limit", "50"}, false},
		{"missing window", []string{"-resource", "charges"}, true},
		{"negative limit", []string{"-limit", "-1"}, true},
		{"unknown resource", []string{"-resource", "spaceships", "-limit", "5"}, true},
		{"not listable", []string{"-resource", "balance", "-limit", "5"}, true},
		{"populate key without resource", []string{"-limit", "5", "-populate-key", "charge"}, true},
		{"unknown flag", []string{"-bogus"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadEnv_RequiresKey(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")

	if _, err := loadEnv(); err == nil {
		t.Error("Expected error without STRIPE_SECRET_KEY")
	}
}

func TestRun_DateWindowWithPopulate(t *testing.T) {
	setupMockEnv(t)

	var out bytes.Buffer
	err := run(context.Background(), []string{
		"-from", "2018-03-07",
		"-to", "2018-03-10",
		"-populate-key", "originating_transaction",
		"-populate-resource", "charges",
	}, &out)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("output is not a JSON array: %v\n%s", err, out.String())
	}
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	for i, want := range []string{"ch_09", "ch_08"} {
		charge, ok := items[i]["charges"].(map[string]any)
		if !ok || charge["id"] != want {
			t.Errorf("item %d charges = %v, want %s", i, items[i]["charges"], want)
		}
	}
}

func TestRun_Limit(t *testing.T) {
	setupMockEnv(t)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-limit", "3"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	var items []map[string]any
	if err := json.Unmarshal(out.Bytes(), &items); err != nil {
		t.Fatalf("output is not a JSON array: %v", err)
	}
	if len(items) != 3 || items[0]["id"] != "fee_11" {
		t.Errorf("items = %v, want 3 newest fees", items)
	}
}

func TestRun_EmptyResultIsEmptyArray(t *testing.T) {
	setupMockEnv(t)

	var out bytes.Buffer
	if err := run(context.Background(), []string{"-from", "2019-01-01", "-to", "2019-01-31"}, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "[]" {
		t.Errorf("output = %q, want []", got)
	}
}

func TestRun_PopulateFailure(t *testing.T) {
	mock := setupMockEnv(t)
	mock.SetObjects("charges", nil)

	err := run(context.Background(), []string{
		"-from", "2018-03-07",
		"-to", "2018-03-10",
		"-populate-key", "originating_transaction",
		"-populate-resource", "charges",
	}, io.Discard)
	if err == nil {
		t.Error("Expected error when referenced charges are missing")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("STRIPE_REPORT_TEST_INT", "12")
	if got := getEnvInt("STRIPE_REPORT_TEST_INT", 3); got != 12 {
		t.Errorf("getEnvInt() = %d, want 12", got)
	}

	t.Setenv("STRIPE_REPORT_TEST_INT", "abc")
	if got := getEnvInt("STRIPE_REPORT_TEST_INT", 3); got != 3 {
		t.Errorf("getEnvInt() = %d, want default 3", got)
	}
}
