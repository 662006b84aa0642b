package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each instance carries its own
// registry so constructing a second server in one process cannot collide.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Action metrics
	ActionsTotal   *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
	ActionsBusy    *prometheus.CounterVec

	// Liveness metrics
	AppsRunning *prometheus.GaugeVec
	StatusScans prometheus.Counter

	// Log metrics
	LogReads *prometheus.CounterVec

	// WebSocket metrics
	StreamConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appman_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appman_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ActionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appman_actions_total",
				Help: "Total number of lifecycle actions by outcome",
			},
			[]string{"app", "action", "outcome"},
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "appman_action_duration_seconds",
				Help:    "Lifecycle action duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"app", "action"},
		),
		ActionsBusy: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appman_actions_busy_total",
				Help: "Actions rejected because the per-app lock was held",
			},
			[]string{"app"},
		),

		AppsRunning: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "appman_app_running",
				Help: "Whether the app had live processes at last status probe",
			},
			[]string{"app"},
		),
		StatusScans: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "appman_status_scans_total",
				Help: "Total number of process-table liveness scans",
			},
		),

		LogReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "appman_log_reads_total",
				Help: "Total number of log tail reads",
			},
			[]string{"app", "channel"},
		),

		StreamConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appman_stream_connections",
				Help: "Number of active log stream connections",
			},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "appman_uptime_seconds",
				Help: "Manager uptime in seconds",
			},
		),
	}

	go m.updateUptime()

	return m
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordAction records a completed lifecycle action
func (m *Metrics) RecordAction(app, action, outcome string, duration time.Duration) {
	m.ActionsTotal.WithLabelValues(app, action, outcome).Inc()
	m.ActionDuration.WithLabelValues(app, action).Observe(duration.Seconds())
}

// RecordBusy records a lock-contention rejection
func (m *Metrics) RecordBusy(app string) {
	m.ActionsBusy.WithLabelValues(app).Inc()
}

// RecordStatus records the outcome of a liveness probe
func (m *Metrics) RecordStatus(app string, running bool) {
	m.StatusScans.Inc()
	v := 0.0
	if running {
		v = 1.0
	}
	m.AppsRunning.WithLabelValues(app).Set(v)
}

// RecordLogRead records a log tail read
func (m *Metrics) RecordLogRead(app, channel string) {
	m.LogReads.WithLabelValues(app, channel).Inc()
}

// IncStreamConnections increments active log stream connections
func (m *Metrics) IncStreamConnections() {
	m.StreamConnections.Inc()
}

// DecStreamConnections decrements active log stream connections
func (m *Metrics) DecStreamConnections() {
	m.StreamConnections.Dec()
}
