package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testOptions(baseURL string) USDAOptions {
	return USDAOptions{
		BaseURL:         baseURL,
		APIKey:          "key",
		UserAgent:       "test",
		Timeout:         time.Second,
		RequestsPerSec:  1000,
		MaxRetryElapsed: 2 * time.Second,
	}
}

func TestUSDAFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reports" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("q"); got != "Tomatoes" {
			t.Fatalf("q = %q, want Tomatoes", got)
		}
		if got := r.URL.Query().Get("zip"); got != "97201" {
			t.Fatalf("zip = %q, want 97201", got)
		}
		user, _, ok := r.BasicAuth()
		if !ok || user != "key" {
			t.Fatalf("api key should be sent as basic auth user")
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{
				map[string]any{
					"commodity_name": "Tomatoes",
					"package":        map[string]string{"unit": "25 lb carton"},
					"low_price":      "2.80",
					"high_price":     3.20,
					"avg_price":      3.05,
					"report_date":    "03/14/2025",
					"location":       "Portland Terminal Market",
				},
				map[string]any{
					"low_price":   2.0,
					"high_price":  3.0,
					"report_date": "2025-03-15",
				},
				map[string]any{
					"low_price":   "N/A",
					"report_date": "2025-03-16",
				},
				map[string]any{
					"avg_price":   3.1,
					"report_date": "yesterday",
				},
			},
		})
	}))
	defer srv.Close()

	u := NewUSDA(testOptions(srv.URL), noopLogger())
	prices, err := u.FetchPrices(context.Background(), "Tomatoes", "97201")
	if err != nil {
		t.Fatalf("successful response should not error: %v", err)
	}
	if len(prices) != 2 {
		t.Fatalf("expected 2 usable rows, got %d", len(prices))
	}

	first := prices[0]
	if first.Unit != "25 lb carton" || first.Location != "Portland Terminal Market" {
		t.Fatalf("unexpected first row: %+v", first)
	}
	if !first.Date.Equal(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s", first.Date)
	}
	if !first.Representative().Equal(decimal.RequireFromString("3.05")) {
		t.Fatalf("avg price should be representative, got %s", first.Representative())
	}

	second := prices[1]
	if second.Commodity != "Tomatoes" || second.Unit != "lb" || second.Location != "Unknown" {
		t.Fatalf("defaults not applied: %+v", second)
	}
	if !second.Representative().Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("midpoint expected, got %s", second.Representative())
	}
}

func TestUSDAFetchHTTPErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "bad commodity"})
	}))
	defer srv.Close()

	u := NewUSDA(testOptions(srv.URL), noopLogger())
	if _, err := u.FetchPrices(context.Background(), "Tomatoes", ""); err == nil {
		t.Fatal("HTTP 400 should return an error")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx should not be retried, got %d calls", calls.Load())
	}
}

func TestUSDAFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []any{map[string]any{"avg_price": 2.2, "report_date": "2025-03-15"}},
		})
	}))
	defer srv.Close()

	u := NewUSDA(testOptions(srv.URL), noopLogger())
	prices, err := u.FetchPrices(context.Background(), "Cucumbers", "")
	if err != nil {
		t.Fatalf("retry should recover: %v", err)
	}
	if len(prices) != 1 || calls.Load() != 2 {
		t.Fatalf("expected 1 price after 2 calls, got %d prices / %d calls", len(prices), calls.Load())
	}
}

func TestUSDAFetchEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	u := NewUSDA(testOptions(srv.URL), noopLogger())
	if _, err := u.FetchPrices(context.Background(), "Kale", ""); !errors.Is(err, ErrNoPrices) {
		t.Fatalf("empty results should be ErrNoPrices, got %v", err)
	}
}

func TestUSDAWithoutKeyUsesFallback(t *testing.T) {
	u := NewUSDA(USDAOptions{Fallback: NewSynthetic(5, 42)}, noopLogger())
	prices, err := u.FetchPrices(context.Background(), "Tomatoes", "")
	if err != nil {
		t.Fatalf("fallback should succeed: %v", err)
	}
	if len(prices) != 5 {
		t.Fatalf("expected 5 synthetic prices, got %d", len(prices))
	}

	u = NewUSDA(USDAOptions{}, noopLogger())
	if _, err := u.FetchPrices(context.Background(), "Tomatoes", ""); err == nil {
		t.Fatal("missing key without fallback should error")
	}
}

func TestUSDAFallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.Fallback = NewSynthetic(3, 7)
	opts.FallbackOnError = true

	u := NewUSDA(opts, noopLogger())
	prices, err := u.FetchPrices(context.Background(), "Zucchini", "")
	if err != nil {
		t.Fatalf("fallback on error should succeed: %v", err)
	}
	if len(prices) != 3 {
		t.Fatalf("expected 3 synthetic prices, got %d", len(prices))
	}
}
