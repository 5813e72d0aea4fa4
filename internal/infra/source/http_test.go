package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/vietddude/marketsync/internal/core/domain"
)

const testKey = domain.SeriesKey("binance:BTCUSDT:candles:1m")

var windowStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFetch_ParsesAndSortsCandles(t *testing.T) {
	var gotQuery map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{
			"series": r.URL.Query().Get("series"),
			"from":   r.URL.Query().Get("from"),
			"to":     r.URL.Query().Get("to"),
		}
		w.Header().Set("Content-Type", "application/json")
		// Out of order on the wire; Fetch must return ascending.
		_, _ = w.Write([]byte(`{"data": [
			{"ts": 1772366460000, "open": "100.5", "high": "101", "low": "99.9", "close": "100.8", "volume": "12.5"},
			{"ts": 1772366400000, "open": "100.1", "high": "100.6", "low": "100", "close": "100.5", "volume": "8.2"}
		]}`))
	}))
	defer server.Close()

	src := NewHTTPSource("binance", server.URL, 5*time.Second)
	candles, err := src.Fetch(context.Background(), testKey,
		windowStart, windowStart.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}

	if gotQuery["series"] != string(testKey) {
		t.Errorf("series param = %q", gotQuery["series"])
	}
	if gotQuery["from"] == "" || gotQuery["to"] == "" {
		t.Errorf("missing range params: %v", gotQuery)
	}

	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Error("candles not sorted ascending")
	}
	if candles[0].Open.String() != "100.1" {
		t.Errorf("Open = %s, want 100.1", candles[0].Open)
	}
	if candles[1].Volume.String() != "12.5" {
		t.Errorf("Volume = %s, want 12.5", candles[1].Volume)
	}
}

func TestFetch_FiltersOutsideHalfOpenRange(t *testing.T) {
	end := windowStart.Add(2 * time.Minute)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Before start, in range, and the inclusive tail the contract excludes.
		_, _ = w.Write([]byte(`{"data": [
			{"ts": ` + ms(windowStart.Add(-time.Minute)) + `, "open": "1", "high": "1", "low": "1", "close": "1", "volume": "1"},
			{"ts": ` + ms(windowStart) + `, "open": "1", "high": "1", "low": "1", "close": "1", "volume": "1"},
			{"ts": ` + ms(end) + `, "open": "1", "high": "1", "low": "1", "close": "1", "volume": "1"}
		]}`))
	}))
	defer server.Close()

	src := NewHTTPSource("binance", server.URL, 5*time.Second)
	candles, err := src.Fetch(context.Background(), testKey, windowStart, end)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle inside [start, end), got %d", len(candles))
	}
	if !candles[0].Timestamp.Equal(windowStart) {
		t.Errorf("Timestamp = %v, want %v", candles[0].Timestamp, windowStart)
	}
}

func TestFetch_NonOKStatusReturnsHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer server.Close()

	src := NewHTTPSource("binance", server.URL, 5*time.Second)
	_, err := src.Fetch(context.Background(), testKey, windowStart, windowStart.Add(time.Minute))

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d, want 429", httpErr.Status)
	}
	if httpErr.Body == "" {
		t.Error("expected the error body to be captured")
	}
}

func TestFetch_MalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"data": [`},
		{"bad decimal", `{"data": [{"ts": 1772366400000, "open": "not-a-number", "high": "1", "low": "1", "close": "1", "volume": "1"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			src := NewHTTPSource("binance", server.URL, 5*time.Second)
			_, err := src.Fetch(context.Background(), testKey, windowStart, windowStart.Add(time.Minute))
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestForSource(t *testing.T) {
	fetchers := Fetchers{"binance": NewHTTPSource("binance", "http://example.com", time.Second)}

	if _, err := fetchers.ForSource("binance"); err != nil {
		t.Errorf("registered source should resolve: %v", err)
	}
	if _, err := fetchers.ForSource("kraken"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("expected ErrUnknownSource, got %v", err)
	}
}

func ms(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
