// Package metrics defines the Prometheus metric collectors used by the indexer
// and the lookup service and exposes an HTTP handler for scraping. A nil
// *Metrics is valid: every recording method on it is a no-op.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ModulesIndexedTotal  *prometheus.CounterVec
	EntriesSkippedTotal  *prometheus.CounterVec
	IndexPassDuration    prometheus.Histogram
	SymbolsWrittenTotal  *prometheus.CounterVec
	IndexFlushesTotal    *prometheus.CounterVec
	ActiveSegments       prometheus.Gauge
	LookupsTotal         *prometheus.CounterVec
	LookupLatency        *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ModulesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modules_indexed_total",
				Help: "Modules processed by outcome (indexed, abandoned).",
			},
			[]string{"status"},
		),
		EntriesSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entries_skipped_total",
				Help: "Recoverable decode failures by kind (constant, attribute, signature).",
			},
			[]string{"kind"},
		),
		IndexPassDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_pass_duration_seconds",
				Help:    "Time to index one module.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		SymbolsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "symbols_written_total",
				Help: "Values appended to index collections by index name.",
			},
			[]string{"index"},
		),
		IndexFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_flushes_total",
				Help: "Total index flush operations by status.",
			},
			[]string{"status"},
		),
		ActiveSegments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_segments",
				Help: "Number of on-disk segments open for lookups.",
			},
		),
		LookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookups_total",
				Help: "Total lookups by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		LookupLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lookup_latency_seconds",
				Help:    "Lookup latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ModulesIndexedTotal,
		m.EntriesSkippedTotal,
		m.IndexPassDuration,
		m.SymbolsWrittenTotal,
		m.IndexFlushesTotal,
		m.ActiveSegments,
		m.LookupsTotal,
		m.LookupLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// ObserveModule records the outcome of one indexing pass.
func (m *Metrics) ObserveModule(status string, d time.Duration, skipped map[string]int, written map[string]int) {
	if m == nil {
		return
	}
	m.ModulesIndexedTotal.WithLabelValues(status).Inc()
	m.IndexPassDuration.Observe(d.Seconds())
	for kind, n := range skipped {
		m.EntriesSkippedTotal.WithLabelValues(kind).Add(float64(n))
	}
	for idx, n := range written {
		m.SymbolsWrittenTotal.WithLabelValues(idx).Add(float64(n))
	}
}

func (m *Metrics) ObserveFlush(status string, segments int) {
	if m == nil {
		return
	}
	m.IndexFlushesTotal.WithLabelValues(status).Inc()
	m.ActiveSegments.Set(float64(segments))
}

func (m *Metrics) SetActiveSegments(segments int) {
	if m == nil {
		return
	}
	m.ActiveSegments.Set(float64(segments))
}

func (m *Metrics) ObserveLookup(resultType, cacheStatus string, d time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(resultType).Inc()
	m.LookupLatency.WithLabelValues(cacheStatus).Observe(d.Seconds())
}

func (m *Metrics) CacheHit() {
	if m != nil {
		m.CacheHitsTotal.Inc()
	}
}

func (m *Metrics) CacheMiss() {
	if m != nil {
		m.CacheMissesTotal.Inc()
	}
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetBreakerState publishes a circuit breaker's state (0 closed, 1 open,
// 2 half-open).
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
