package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the capture daemon.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	activeSessions         prometheus.Gauge
	segmentsFinalizedTotal prometheus.Counter
	partialSegmentsTotal   prometheus.Counter
	framesDroppedTotal     prometheus.Counter
	recoveryAttemptsTotal  prometheus.Counter
	displayEvictionsTotal  prometheus.Counter
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_requests_total",
		Help: "Total number of HTTP requests received on the control surface",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "capd_active_capture_sessions",
		Help: "Number of capture sessions currently streaming frames",
	})
	segmentsFinalizedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_segments_finalized_total",
		Help: "Total number of video segments validated and finalized",
	})
	partialSegmentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_partial_segments_total",
		Help: "Total number of segment files marked partial instead of finalized",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_frames_dropped_total",
		Help: "Total number of frames dropped by the allowlist gate",
	})
	recoveryAttemptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_recovery_attempts_total",
		Help: "Total number of capture session recovery attempts",
	})
	displayEvictionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "capd_display_evictions_total",
		Help: "Total number of displays evicted for the remainder of a run",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		activeSessions,
		segmentsFinalizedTotal,
		partialSegmentsTotal,
		framesDroppedTotal,
		recoveryAttemptsTotal,
		displayEvictionsTotal,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		activeSessions:         activeSessions,
		segmentsFinalizedTotal: segmentsFinalizedTotal,
		partialSegmentsTotal:   partialSegmentsTotal,
		framesDroppedTotal:     framesDroppedTotal,
		recoveryAttemptsTotal:  recoveryAttemptsTotal,
		displayEvictionsTotal:  displayEvictionsTotal,
	}
}

// IncRequests increments the control-surface request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the control-surface error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// SetActiveSessions sets the active capture session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncSegmentsFinalized increments the finalized segment counter.
func (m *Metrics) IncSegmentsFinalized() {
	m.segmentsFinalizedTotal.Inc()
}

// IncPartialSegments increments the partial segment counter.
func (m *Metrics) IncPartialSegments() {
	m.partialSegmentsTotal.Inc()
}

// IncFramesDropped increments the gate-dropped frame counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDroppedTotal.Inc()
}

// IncRecoveryAttempts increments the recovery attempt counter.
func (m *Metrics) IncRecoveryAttempts() {
	m.recoveryAttemptsTotal.Inc()
}

// IncDisplayEvictions increments the display eviction counter.
func (m *Metrics) IncDisplayEvictions() {
	m.displayEvictionsTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
