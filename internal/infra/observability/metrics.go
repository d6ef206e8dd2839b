package observability

import (
	"time"

	"github.com/boddenberg/freight-quote-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
	exhaustions     prometheus.Counter
	rejected        *prometheus.CounterVec
	optionsReturned prometheus.Histogram
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_quote_runs_total",
				Help: "Total aggregation runs by outcome.",
			},
			[]string{"status"},
		),
		fallbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_rate_source_fallbacks_total",
				Help: "Combinations answered by the simulator instead of their source.",
			},
			[]string{"source"},
		),
		exhaustions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_rate_exhaustions_total",
				Help: "Runs where every source failed and the global simulation answered.",
			},
		),
		rejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_rate_options_rejected_total",
				Help: "Raw options dropped by the normalizer.",
			},
			[]string{"operation"},
		),
		optionsReturned: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bfa_rate_options_returned",
				Help:    "Number of options returned per run.",
				Buckets: []float64{0, 1, 2, 4, 6, 10, 15, 25},
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRequest increments the run counter with a status label
// (success, degraded, exhausted, error).
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

// IncrFallback counts one combination served by the simulator.
func (m *Metrics) IncrFallback(source string) {
	m.fallbacks.WithLabelValues(source).Inc()
}

// IncrExhaustion counts one totally exhausted run.
func (m *Metrics) IncrExhaustion() {
	m.exhaustions.Inc()
}

// AddRejected counts raw options the normalizer dropped.
func (m *Metrics) AddRejected(operation string, n int) {
	if n <= 0 {
		return
	}
	m.rejected.WithLabelValues(operation).Add(float64(n))
}

// ObserveOptions records how many options a run returned.
func (m *Metrics) ObserveOptions(n int) {
	m.optionsReturned.Observe(float64(n))
}

// GetQuoteSnapshot returns a snapshot of quote metrics suitable for the
// GET /v1/metrics/quotes endpoint.
func (m *Metrics) GetQuoteSnapshot() *domain.QuoteMetrics {
	success := getCounterValue(m.requestsTotal, "success")
	degraded := getCounterValue(m.requestsTotal, "degraded")
	exhausted := getCounterValue(m.requestsTotal, "exhausted")
	errorCount := getCounterValue(m.requestsTotal, "error")
	totalRuns := success + degraded + exhausted + errorCount

	rejected := getCounterValue(m.rejected, "aggregate") + getCounterValue(m.rejected, "normalize")
	cacheHits := getCounterValue(m.cacheHits, "carriers")
	cacheMisses := getCounterValue(m.cacheMisses, "carriers")

	snap := &domain.QuoteMetrics{
		TotalRuns:     int64(totalRuns),
		RejectedTotal: int64(rejected),
		Period:        "all_time",
	}
	if totalRuns > 0 {
		snap.ErrorRate = errorCount / totalRuns
		snap.FallbackRate = (degraded + exhausted) / totalRuns
		snap.ExhaustionRate = exhausted / totalRuns
	}
	if cacheHits+cacheMisses > 0 {
		snap.CacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}
	return snap
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
