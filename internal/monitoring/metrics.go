// Package monitoring exposes Prometheus metrics and request instrumentation
// for the scoring service.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "vanguardia"
	subsystem = "performance"
)

// Metrics holds the Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	snapshotBatches       *prometheus.CounterVec
	snapshotBatchDuration prometheus.Histogram
	snapshotOwners        prometheus.Gauge

	scoringErrors prometheus.Counter

	rateLimitRejected    prometheus.Counter
	rateLimitRedisErrors prometheus.Counter
	rateLimitFallback    prometheus.Counter
}

// NewMetrics creates a metrics set on its own registry, keeping test
// instances from colliding on the default registerer.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	auto := promauto.With(registry)

	m := &Metrics{registry: registry}

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint, method, and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	m.snapshotBatches = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_batches_total",
			Help:      "Total number of snapshot batch runs by outcome",
		},
		[]string{"status"},
	)

	m.snapshotBatchDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "snapshot_batch_duration_seconds",
		Help:      "Duration of the daily snapshot batch in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	m.snapshotOwners = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "snapshot_owners",
		Help:      "Number of owners covered by the last snapshot batch",
	})

	m.scoringErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "scoring_errors_total",
		Help:      "Total number of failed scoring requests",
	})

	m.rateLimitRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limit_rejected_total",
		Help:      "Total number of requests rejected by the rate limiter",
	})

	m.rateLimitRedisErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limit_redis_errors_total",
		Help:      "Total number of Redis failures during rate limit checks",
	})

	m.rateLimitFallback = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "rate_limit_fallback_total",
		Help:      "Total number of rate limit checks served by the in-memory fallback",
	})

	return m
}

// Handler serves the Prometheus exposition endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(endpoint, method, statusCode string, duration time.Duration) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// RecordSnapshotBatch records one snapshot batch run.
func (m *Metrics) RecordSnapshotBatch(owners int, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.snapshotBatches.WithLabelValues(status).Inc()
	m.snapshotBatchDuration.Observe(duration.Seconds())
	if err == nil {
		m.snapshotOwners.Set(float64(owners))
	}
}

// IncrementScoringError increments the scoring error counter.
func (m *Metrics) IncrementScoringError() {
	m.scoringErrors.Inc()
}

// IncrementRateLimitRejected increments the rejected-request counter.
func (m *Metrics) IncrementRateLimitRejected() {
	m.rateLimitRejected.Inc()
}

// IncrementRateLimitRedisError increments the Redis failure counter.
func (m *Metrics) IncrementRateLimitRedisError() {
	m.rateLimitRedisErrors.Inc()
}

// IncrementRateLimitFallback increments the fallback-path counter.
func (m *Metrics) IncrementRateLimitFallback() {
	m.rateLimitFallback.Inc()
}
