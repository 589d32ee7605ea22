package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cryptoprice/internal/metrics"
	"cryptoprice/internal/price"
)

// Action is the closed set of operations this service dispatches.
type Action int

const (
	ActionUnknown Action = iota
	ActionPriceGet
	ActionPricesGet
	ActionPricesCompare
)

const (
	actionPriceGet      = "crypto.price.get"
	actionPricesGet     = "crypto.prices.get"
	actionPricesCompare = "crypto.prices.compare"
)

// ParseAction maps a wire action string to its variant. Unrecognized
// strings map to ActionUnknown rather than falling through comparisons.
func ParseAction(s string) Action {
	switch s {
	case actionPriceGet:
		return ActionPriceGet
	case actionPricesGet:
		return ActionPricesGet
	case actionPricesCompare:
		return ActionPricesCompare
	default:
		return ActionUnknown
	}
}

func (a Action) String() string {
	switch a {
	case ActionPriceGet:
		return actionPriceGet
	case ActionPricesGet:
		return actionPricesGet
	case ActionPricesCompare:
		return actionPricesCompare
	default:
		return "unknown"
	}
}

// DefaultCurrency is used when a request omits the currency parameter.
const DefaultCurrency = "USD"

// PriceService is the resolver operations the dispatcher drives.
type PriceService interface {
	PriceOf(ctx context.Context, symbol, currency string) (price.Quote, error)
	PricesOf(ctx context.Context, symbols []string, currency string) []price.Quote
}

// ListData is the response payload for batch price lookups.
type ListData struct {
	Prices    []price.Quote `json:"prices"`
	Count     int           `json:"count"`
	Timestamp int64         `json:"timestamp"`
}

// Comparison is the ratio between two resolved prices:
// 1 unit of Base is worth Ratio units of Quote.
type Comparison struct {
	Base  string  `json:"base"`
	Quote string  `json:"quote"`
	Ratio float64 `json:"ratio"`
}

// CompareData is the response payload for price comparisons. Historical
// lookback is not implemented; comparisons always reflect current prices.
type CompareData struct {
	Prices      []price.Quote `json:"prices"`
	Comparisons []Comparison  `json:"comparisons"`
	Count       int           `json:"count"`
	Timestamp   int64         `json:"timestamp"`
}

// Dispatcher routes decoded request envelopes to resolver operations and
// shapes the outcome as a response or error envelope. It holds no per-request
// state; every request is handled independently.
type Dispatcher struct {
	prices   PriceService
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	handlers map[Action]func(ctx context.Context, req Request) Message
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatcherClock sets the time source for response timestamps.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithDispatcherMetrics sets the metrics sink.
func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher over prices.
func NewDispatcher(prices PriceService, options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		prices: prices,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, option := range options {
		option(d)
	}
	d.handlers = map[Action]func(ctx context.Context, req Request) Message{
		ActionPriceGet:      d.handlePriceGet,
		ActionPricesGet:     d.handlePricesGet,
		ActionPricesCompare: d.handlePricesCompare,
	}
	return d
}

// Handle routes req to its handler and returns the reply envelope. The
// request's context is reused on every reply; parameter and action errors
// are reported before any upstream work happens.
func (d *Dispatcher) Handle(ctx context.Context, req Request) Message {
	action := ParseAction(req.Action)
	handler, ok := d.handlers[action]
	if !ok {
		d.logger.Error("unknown action", "action", req.Action, "request_id", req.Context.RequestID)
		d.metrics.RecordRequest(req.Action, "invalid")
		return NewErrorResponse(CodeInvalidRequest,
			fmt.Sprintf("Unknown action: %s", req.Action), nil, req.Context)
	}

	msg := handler(ctx, req)
	if msg.MessageType() == TypeError {
		d.metrics.RecordRequest(req.Action, "error")
	} else {
		d.metrics.RecordRequest(req.Action, "ok")
	}
	return msg
}

func (d *Dispatcher) handlePriceGet(ctx context.Context, req Request) Message {
	symbol, ok := stringParam(req.Parameters, "symbol")
	if !ok {
		d.logger.Error("missing required parameter: symbol", "request_id", req.Context.RequestID)
		return NewErrorResponse(CodeInvalidParameter,
			"Missing required parameter: symbol", nil, req.Context)
	}
	currency := currencyParam(req.Parameters)

	q, err := d.prices.PriceOf(ctx, symbol, currency)
	if err != nil {
		return d.resolveError(err, symbol, currency, req.Context)
	}
	return NewResponse(q, req.Context)
}

func (d *Dispatcher) handlePricesGet(ctx context.Context, req Request) Message {
	symbols, ok := stringSliceParam(req.Parameters, "symbols")
	if !ok {
		d.logger.Error("invalid or missing parameter: symbols", "request_id", req.Context.RequestID)
		return NewErrorResponse(CodeInvalidParameter,
			"Invalid or missing parameter: symbols (must be a list)", nil, req.Context)
	}
	currency := currencyParam(req.Parameters)

	quotes := d.prices.PricesOf(ctx, symbols, currency)
	if len(quotes) == 0 {
		return NewErrorResponse(CodeResourceNotFound,
			"No prices found for the requested symbols", nil, req.Context)
	}
	return NewResponse(ListData{
		Prices:    quotes,
		Count:     len(quotes),
		Timestamp: d.now().UnixMilli(),
	}, req.Context)
}

// handlePricesCompare resolves current prices for the requested symbols and
// reports pairwise ratios. The optional days_ago parameter is accepted but
// ignored: historical data is out of scope, current prices only.
func (d *Dispatcher) handlePricesCompare(ctx context.Context, req Request) Message {
	symbols, ok := stringSliceParam(req.Parameters, "symbols")
	if !ok {
		d.logger.Error("invalid or missing parameter: symbols", "request_id", req.Context.RequestID)
		return NewErrorResponse(CodeInvalidParameter,
			"Invalid or missing parameter: symbols (must be a list)", nil, req.Context)
	}
	currency := currencyParam(req.Parameters)

	quotes := d.prices.PricesOf(ctx, symbols, currency)
	if len(quotes) == 0 {
		return NewErrorResponse(CodeResourceNotFound,
			"No prices found for the requested symbols", nil, req.Context)
	}

	comparisons := make([]Comparison, 0, len(quotes)*(len(quotes)-1)/2)
	for i := 0; i < len(quotes); i++ {
		for j := i + 1; j < len(quotes); j++ {
			var ratio float64
			if quotes[j].Price != 0 {
				ratio = quotes[i].Price / quotes[j].Price
			}
			comparisons = append(comparisons, Comparison{
				Base:  quotes[i].Symbol,
				Quote: quotes[j].Symbol,
				Ratio: ratio,
			})
		}
	}
	return NewResponse(CompareData{
		Prices:      quotes,
		Comparisons: comparisons,
		Count:       len(quotes),
		Timestamp:   d.now().UnixMilli(),
	}, req.Context)
}

// resolveError maps resolver failures onto the closed error code set:
// an absent currency is 1003, anything upstream is 1002.
func (d *Dispatcher) resolveError(err error, symbol, currency string, ctx Context) Message {
	if errors.Is(err, price.ErrNotFound) {
		return NewErrorResponse(CodeResourceNotFound,
			fmt.Sprintf("Price for %s/%s not found", symbol, currency), nil, ctx)
	}
	d.logger.Error("error getting crypto price", "symbol", symbol, "currency", currency, "error", err)
	return NewErrorResponse(CodeServiceUnavailable,
		fmt.Sprintf("Error fetching price data: %v", err), nil, ctx)
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func currencyParam(params map[string]any) string {
	if c, ok := stringParam(params, "currency"); ok {
		return c
	}
	return DefaultCurrency
}

// stringSliceParam accepts a non-empty JSON array of strings.
func stringSliceParam(params map[string]any, key string) ([]string, bool) {
	v, ok := params[key]
	if !ok {
		return nil, false
	}
	switch list := v.(type) {
	case []string:
		if len(list) == 0 {
			return nil, false
		}
		return list, true
	case []any:
		if len(list) == 0 {
			return nil, false
		}
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
