// Package metrics exposes Prometheus instrumentation for the HTTP
// surface, the repositories, and the cache.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry
	logger   zerolog.Logger

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpInFlight prometheus.Gauge

	dbDuration *prometheus.HistogramVec
	dbErrors   *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// SlowQueryThreshold triggers a warning log when a tracked database
	// operation exceeds it.
	SlowQueryThreshold time.Duration
}

// New creates and registers all collectors on a fresh registry.
func New(logger zerolog.Logger, slowQueryThreshold time.Duration) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry:           registry,
		logger:             logger,
		SlowQueryThreshold: slowQueryThreshold,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests partitioned by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "merit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Histogram of HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		httpInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "merit",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		dbDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "merit",
			Subsystem: "db",
			Name:      "operation_duration_seconds",
			Help:      "Histogram of database operation latencies in seconds.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"operation", "table"}),

		dbErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merit",
			Subsystem: "db",
			Name:      "operation_errors_total",
			Help:      "Total number of failed database operations.",
		}, []string{"operation", "table"}),

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merit",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of cache hits.",
		}, []string{"cache"}),

		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "merit",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of cache misses.",
		}, []string{"cache"}),
	}
}

// Handler returns the /metrics endpoint handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records a completed HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpDuration.With(labels).Observe(elapsed.Seconds())
}

// RequestStarted marks an in-flight request. The returned func marks it done.
func (m *Metrics) RequestStarted() func() {
	m.httpInFlight.Inc()
	return m.httpInFlight.Dec
}

// CacheHit records a cache hit for the named cache.
func (m *Metrics) CacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// CacheMiss records a cache miss for the named cache.
func (m *Metrics) CacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// TrackDBOperation times fn, records the duration, and logs a warning
// when it crosses the slow query threshold.
func (m *Metrics) TrackDBOperation(ctx context.Context, operation, table string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)

	m.dbDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
	if err != nil {
		m.dbErrors.WithLabelValues(operation, table).Inc()
	}

	if m.SlowQueryThreshold > 0 && elapsed > m.SlowQueryThreshold {
		m.logger.Warn().
			Str("operation", operation).
			Str("table", table).
			Dur("elapsed", elapsed).
			Msg("slow database operation")
	}

	return err
}
