package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"cryptoprice/internal/metrics"
)

// DefaultTTL is how long a fetched rate table stays fresh.
const DefaultTTL = 60 * time.Second

// Table maps a currency code to its exchange rate. All rates in one table
// share a single pivot symbol: a rate is "units of currency per 1 unit of
// the pivot".
type Table map[string]float64

// Fetcher retrieves a fresh rate table for a pivot currency from upstream.
type Fetcher interface {
	FetchRates(ctx context.Context, currency string) (Table, error)
}

// entry stores a cached table with its fetch time.
type entry struct {
	table     Table
	fetchedAt time.Time
}

// Cache keeps one rate table per pivot symbol and refreshes it from the
// Fetcher once the TTL has elapsed. Concurrent refreshes for the same
// symbol are coalesced into a single upstream call.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the freshness window. Non-positive values keep the default.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock sets the time source used for entry ages. Tests use this to
// simulate TTL expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// NewCache creates a cache over fetcher.
func NewCache(fetcher Fetcher, options ...Option) *Cache {
	c := &Cache{
		fetcher: fetcher,
		ttl:     DefaultTTL,
		now:     time.Now,
		logger:  slog.Default(),
		entries: make(map[string]entry),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// Rates returns the rate table for symbol, fetching from upstream when no
// entry exists or the cached one is older than the TTL. A failed refresh
// returns the error; an expired entry is never served stale.
func (c *Cache) Rates(ctx context.Context, symbol string) (Table, error) {
	if t, ok := c.fresh(symbol); ok {
		c.logger.Debug("using cached exchange rates", "symbol", symbol)
		c.metrics.RecordCacheHit(symbol)
		return t, nil
	}
	c.metrics.RecordCacheMiss(symbol)

	v, err, _ := c.group.Do(symbol, func() (any, error) {
		// A concurrent caller may have refreshed while we queued.
		if t, ok := c.fresh(symbol); ok {
			return t, nil
		}
		return c.refresh(ctx, symbol)
	})
	if err != nil {
		return nil, err
	}
	return v.(Table), nil
}

func (c *Cache) fresh(symbol string) (Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[symbol]
	if !ok || c.now().Sub(e.fetchedAt) >= c.ttl {
		return nil, false
	}
	return e.table, true
}

func (c *Cache) refresh(ctx context.Context, symbol string) (Table, error) {
	c.logger.Info("fetching exchange rates", "symbol", symbol)
	start := time.Now()
	table, err := c.fetcher.FetchRates(ctx, symbol)
	if err != nil {
		c.metrics.RecordUpstreamRequest("error", time.Since(start).Seconds())
		c.logger.Error("fetching exchange rates failed", "symbol", symbol, "error", err)
		return nil, err
	}
	c.metrics.RecordUpstreamRequest("ok", time.Since(start).Seconds())

	c.mu.Lock()
	c.entries[symbol] = entry{table: table, fetchedAt: c.now()}
	c.mu.Unlock()
	return table, nil
}
