package price

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cryptoprice/internal/rates"
)

// ErrNotFound reports that the requested base currency is absent from the
// symbol's rate table. It is an expected condition, not an upstream failure.
var ErrNotFound = errors.New("currency not found in rate table")

// Quote is a resolved price for one symbol. Immutable once constructed.
type Quote struct {
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	BaseCurrency string  `json:"base_currency"`
	Timestamp    int64   `json:"timestamp"`
}

// RateSource provides the current rate table for a pivot symbol.
type RateSource interface {
	Rates(ctx context.Context, symbol string) (rates.Table, error)
}

// Resolver converts rate-table lookups into priced quotes.
type Resolver struct {
	source RateSource
	now    func() time.Time
	logger *slog.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithClock sets the time source for quote timestamps.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a resolver over source.
func NewResolver(source RateSource, options ...ResolverOption) *Resolver {
	r := &Resolver{
		source: source,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// PriceOf resolves the price of 1 unit of symbol expressed in currency.
// Upstream quotes rates pivoted on symbol, i.e. "units of currency per 1
// symbol", so the price is the inverse of the rate. A zero rate yields a
// zero price rather than a division fault.
func (r *Resolver) PriceOf(ctx context.Context, symbol, currency string) (Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	table, err := r.source.Rates(ctx, symbol)
	if err != nil {
		return Quote{}, fmt.Errorf("rates for %s: %w", symbol, err)
	}

	rate, ok := table[currency]
	if !ok {
		return Quote{}, fmt.Errorf("%s/%s: %w", symbol, currency, ErrNotFound)
	}

	var p float64
	if rate != 0 {
		p = 1.0 / rate
	}
	return Quote{
		Symbol:       symbol,
		Price:        p,
		BaseCurrency: currency,
		Timestamp:    r.now().UnixMilli(),
	}, nil
}

// PricesOf resolves each symbol independently and in order. Symbols that
// fail to resolve, whether unknown or hit by an upstream error, are dropped
// from the result; the batch itself never fails.
func (r *Resolver) PricesOf(ctx context.Context, symbols []string, currency string) []Quote {
	quotes := make([]Quote, 0, len(symbols))
	for _, symbol := range symbols {
		q, err := r.PriceOf(ctx, symbol, currency)
		if err != nil {
			r.logger.Warn("dropping symbol from batch", "symbol", symbol, "currency", currency, "error", err)
			continue
		}
		quotes = append(quotes, q)
	}
	return quotes
}
