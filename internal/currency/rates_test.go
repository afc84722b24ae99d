package currency

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestConvert(t *testing.T) {
	rates := Snapshot{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.NewFromFloat(0.92),
		"JPY": decimal.NewFromFloat(145.2),
	}

	t.Run("converts from the base currency", func(t *testing.T) {
		got, err := Convert(decimal.NewFromInt(100), "USD", "EUR", rates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.NewFromInt(92)) {
			t.Errorf("expected 92, got %s", got)
		}
	})

	t.Run("converts between non-base currencies", func(t *testing.T) {
		got, err := Convert(decimal.NewFromFloat(0.92), "EUR", "JPY", rates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.NewFromFloat(145.2)) {
			t.Errorf("expected 145.2, got %s", got)
		}
	})

	t.Run("identity conversion is a no-op", func(t *testing.T) {
		got, err := Convert(decimal.RequireFromString("132.55"), "USD", "USD", rates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !got.Equal(decimal.RequireFromString("132.55")) {
			t.Errorf("expected 132.55, got %s", got)
		}
	})

	t.Run("rounds to two decimal places", func(t *testing.T) {
		got, err := Convert(decimal.RequireFromString("33.33"), "USD", "EUR", rates)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// 33.33 * 0.92 = 30.6636
		if !got.Equal(decimal.RequireFromString("30.66")) {
			t.Errorf("expected 30.66, got %s", got)
		}
	})

	t.Run("zero rates error instead of panicking", func(t *testing.T) {
		poisoned := Snapshot{
			"USD": decimal.Zero,
			"EUR": decimal.NewFromFloat(0.92),
		}

		if _, err := Convert(decimal.NewFromInt(100), "USD", "EUR", poisoned); err == nil {
			t.Error("expected error for zero source rate")
		}
		if _, err := Convert(decimal.NewFromInt(100), "EUR", "USD", poisoned); err == nil {
			t.Error("expected error for zero target rate")
		}
	})

	t.Run("unknown currencies error", func(t *testing.T) {
		if _, err := Convert(decimal.NewFromInt(1), "USD", "XXX", rates); err == nil {
			t.Error("expected error for unknown target")
		}
		if _, err := Convert(decimal.NewFromInt(1), "XXX", "USD", rates); err == nil {
			t.Error("expected error for unknown source")
		}
	})
}

func TestStaticSource(t *testing.T) {
	snapshot, err := StaticSource{}.Rates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !snapshot["USD"].Equal(decimal.NewFromInt(1)) {
		t.Errorf("expected base rate 1, got %s", snapshot["USD"])
	}
	if _, ok := snapshot["EUR"]; !ok {
		t.Error("expected EUR in the fallback table")
	}
}

// unreachableRedis points at a port nothing listens on, so every cache
// operation fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestCachedSource_Rates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("fetches from the rate API when the cache misses", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"rates": {"USD": 1, "EUR": 0.95}}`)
		}))
		defer api.Close()

		source := NewCachedSource(api.URL, api.Client(), unreachableRedis(t), time.Hour, logger)

		snapshot, err := source.Rates(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !snapshot["EUR"].Equal(decimal.NewFromFloat(0.95)) {
			t.Errorf("expected fetched EUR rate 0.95, got %s", snapshot["EUR"])
		}
	})

	t.Run("falls back to the static table when API and cache are down", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer api.Close()

		source := NewCachedSource(api.URL, api.Client(), unreachableRedis(t), time.Hour, logger)

		snapshot, err := source.Rates(context.Background())
		if err != nil {
			t.Fatalf("rates must never fail: %v", err)
		}
		if !snapshot["EUR"].Equal(decimal.NewFromFloat(0.92)) {
			t.Errorf("expected fallback EUR rate 0.92, got %s", snapshot["EUR"])
		}
	})

	t.Run("drops non-positive rates from the API", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"rates": {"USD": 1, "EUR": 0, "GBP": -0.5, "JPY": 145.2}}`)
		}))
		defer api.Close()

		source := NewCachedSource(api.URL, api.Client(), unreachableRedis(t), time.Hour, logger)

		snapshot, err := source.Rates(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := snapshot["EUR"]; ok {
			t.Error("zero rate must be dropped")
		}
		if _, ok := snapshot["GBP"]; ok {
			t.Error("negative rate must be dropped")
		}
		if !snapshot["JPY"].Equal(decimal.NewFromFloat(145.2)) {
			t.Errorf("valid rate lost, got %s", snapshot["JPY"])
		}
	})

	t.Run("all rates unusable falls back", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"rates": {"USD": 0, "EUR": 0}}`)
		}))
		defer api.Close()

		source := NewCachedSource(api.URL, api.Client(), unreachableRedis(t), time.Hour, logger)

		snapshot, err := source.Rates(context.Background())
		if err != nil {
			t.Fatalf("rates must never fail: %v", err)
		}
		if !snapshot["EUR"].Equal(decimal.NewFromFloat(0.92)) {
			t.Errorf("expected fallback EUR rate 0.92, got %s", snapshot["EUR"])
		}
	})

	t.Run("empty API response falls back", func(t *testing.T) {
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"rates": {}}`)
		}))
		defer api.Close()

		source := NewCachedSource(api.URL, api.Client(), unreachableRedis(t), time.Hour, logger)

		snapshot, err := source.Rates(context.Background())
		if err != nil {
			t.Fatalf("rates must never fail: %v", err)
		}
		if len(snapshot) == 0 {
			t.Error("expected the fallback table, got an empty snapshot")
		}
	})
}
