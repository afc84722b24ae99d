// Package currency provides display-only conversion of stored amounts.
// Authoritative order totals are always computed and persisted in the base
// currency; nothing here feeds back into pricing.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const BaseCurrency = "USD"

const cacheKey = "storefront:currency:rates"

// Snapshot maps currency codes to their rate against the base currency.
type Snapshot map[string]decimal.Decimal

type Source interface {
	Rates(ctx context.Context) (Snapshot, error)
}

// fallbackRates is the last resort when both the rate API and the cache are
// unavailable.
var fallbackRates = Snapshot{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.NewFromFloat(0.92),
	"GBP": decimal.NewFromFloat(0.81),
	"JPY": decimal.NewFromFloat(145.2),
	"AUD": decimal.NewFromFloat(1.48),
	"CAD": decimal.NewFromFloat(1.34),
	"INR": decimal.NewFromFloat(83.1),
	"CNY": decimal.NewFromFloat(7.1),
}

// CachedSource serves rate snapshots from Redis, refreshing from an external
// rate API when the cached entry expires. It never fails a caller: when both
// the cache and the API are down it falls back to the static table.
type CachedSource struct {
	apiURL string
	client *http.Client
	cache  *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSource(apiURL string, client *http.Client, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return &CachedSource{
		apiURL: apiURL,
		client: client,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *CachedSource) Rates(ctx context.Context) (Snapshot, error) {
	if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
		var snapshot Snapshot
		if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
			return snapshot, nil
		}
		s.logger.Warn("discarding malformed cached rates", "error", err)
	} else if err != redis.Nil {
		s.logger.Warn("rates cache unavailable", "error", err)
	}

	snapshot, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("rate API unavailable, using fallback table", "error", err)
		return fallbackRates, nil
	}

	if data, err := json.Marshal(snapshot); err == nil {
		if err := s.cache.Set(ctx, cacheKey, data, s.ttl).Err(); err != nil {
			s.logger.Warn("failed to cache rates", "error", err)
		}
	}

	return snapshot, nil
}

type ratesAPIResponse struct {
	Rates map[string]float64 `json:"rates"`
}

func (s *CachedSource) fetch(ctx context.Context) (Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.apiURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var body ratesAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if len(body.Rates) == 0 {
		return nil, fmt.Errorf("rate API returned no rates")
	}

	snapshot := make(Snapshot, len(body.Rates))
	for code, rate := range body.Rates {
		// Non-positive rates would make later conversions divide by zero or
		// flip signs; a payload carrying one is not trusted.
		if rate <= 0 {
			s.logger.Warn("dropping non-positive rate", "currency", code, "rate", rate)
			continue
		}
		snapshot[code] = decimal.NewFromFloat(rate)
	}
	if len(snapshot) == 0 {
		return nil, fmt.Errorf("rate API returned no usable rates")
	}
	return snapshot, nil
}

// StaticSource always serves the fallback table. Used when no Redis or rate
// API is configured.
type StaticSource struct{}

func (StaticSource) Rates(context.Context) (Snapshot, error) {
	return fallbackRates, nil
}

// Convert rebases amount from one currency to another using the snapshot.
// A zero or missing rate is an error, never a panic: snapshots can come from
// an external API and the source rate is a divisor.
func Convert(amount decimal.Decimal, from, to string, rates Snapshot) (decimal.Decimal, error) {
	fromRate, ok := rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, fmt.Errorf("no rate for currency %q", from)
	}
	toRate, ok := rates[to]
	if !ok || toRate.IsZero() {
		return decimal.Zero, fmt.Errorf("no rate for currency %q", to)
	}
	return amount.Div(fromRate).Mul(toRate).Round(2), nil
}
