package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing, so components can run without monitoring wired in.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Instance metrics
	Instances       *prometheus.GaugeVec
	InstancesReaped prometheus.Counter

	// Lifecycle metrics
	EventsReceived   *prometheus.CounterVec
	EnvelopesDropped *prometheus.CounterVec
	DispatchDropped  prometheus.Counter

	// Launcher metrics
	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec

	// Store metrics
	StoreFailures *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a metrics collector registered on reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &Metrics{startTime: time.Now()}

	// HTTP metrics
	m.RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	m.RequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widgetd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Instance metrics
	m.Instances = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "widgetd_instances",
			Help: "Number of tracked widget instances by status",
		},
		[]string{"status"},
	)
	m.InstancesReaped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "widgetd_instances_reaped_total",
			Help: "Instances removed after never leaving the created state",
		},
	)

	// Lifecycle metrics
	m.EventsReceived = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetd_lifecycle_events_total",
			Help: "Lifecycle events received from widget processes",
		},
		[]string{"event"},
	)
	m.EnvelopesDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetd_envelopes_dropped_total",
			Help: "Lifecycle envelopes dropped before reaching the registry",
		},
		[]string{"reason"},
	)
	m.DispatchDropped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "widgetd_dispatch_dropped_total",
			Help: "Republished events dropped because the listener queue was full",
		},
	)

	// Launcher metrics
	m.Commands = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetd_launch_commands_total",
			Help: "Commands sent to the platform launcher",
		},
		[]string{"operation", "result"},
	)
	m.CommandDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "widgetd_launch_command_duration_seconds",
			Help:    "Launcher round-trip time in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	// Store metrics
	m.StoreFailures = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "widgetd_store_failures_total",
			Help: "Failed instance store operations",
		},
		[]string{"op"},
	)

	// WebSocket metrics
	m.WSConnections = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "widgetd_ws_connections",
			Help: "Open lifecycle event streams",
		},
	)

	// System metrics
	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "widgetd_uptime_seconds",
			Help: "Daemon uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetInstances replaces the per-status instance gauges
func (m *Metrics) SetInstances(byStatus map[string]int) {
	if m == nil {
		return
	}
	m.Instances.Reset()
	for status, n := range byStatus {
		m.Instances.WithLabelValues(status).Set(float64(n))
	}
}

// AddReaped counts reaped instances
func (m *Metrics) AddReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.InstancesReaped.Add(float64(n))
}

// RecordEvent counts a decoded lifecycle event
func (m *Metrics) RecordEvent(event string) {
	if m == nil {
		return
	}
	m.EventsReceived.WithLabelValues(event).Inc()
}

// RecordDroppedEnvelope counts an envelope that could not be applied
func (m *Metrics) RecordDroppedEnvelope(reason string) {
	if m == nil {
		return
	}
	m.EnvelopesDropped.WithLabelValues(reason).Inc()
}

// IncDispatchDropped counts a republished event lost to a full queue
func (m *Metrics) IncDispatchDropped() {
	if m == nil {
		return
	}
	m.DispatchDropped.Inc()
}

// RecordCommand records a launcher command and its round-trip time
func (m *Metrics) RecordCommand(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(operation, result).Inc()
	m.CommandDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordStoreFailure counts a failed store operation
func (m *Metrics) RecordStoreFailure(op string) {
	if m == nil {
		return
	}
	m.StoreFailures.WithLabelValues(op).Inc()
}

// IncWSConnections increments open event streams
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements open event streams
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
