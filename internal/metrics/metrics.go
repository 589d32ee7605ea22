package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op receiver so components can run unobserved in tests.
type Metrics struct {
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration prometheus.Histogram

	RequestsTotal *prometheus.CounterVec
}

// New registers all collectors against reg. Pass prometheus.DefaultRegisterer
// in main and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypto_price_cache_hits_total",
				Help: "Exchange-rate cache hits by pivot symbol",
			},
			[]string{"symbol"},
		),
		CacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypto_price_cache_misses_total",
				Help: "Exchange-rate cache misses (expired or absent) by pivot symbol",
			},
			[]string{"symbol"},
		),
		UpstreamRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypto_price_upstream_requests_total",
				Help: "Upstream exchange-rate fetches by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamRequestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crypto_price_upstream_request_duration_seconds",
				Help:    "Upstream exchange-rate fetch latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
			},
		),
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mcp_requests_total",
				Help: "Dispatched MCP requests by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

func (m *Metrics) RecordCacheHit(symbol string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) RecordCacheMiss(symbol string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(symbol).Inc()
}

func (m *Metrics) RecordUpstreamRequest(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.UpstreamRequestsTotal.WithLabelValues(outcome).Inc()
	m.UpstreamRequestDuration.Observe(seconds)
}

func (m *Metrics) RecordRequest(action, outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(action, outcome).Inc()
}
