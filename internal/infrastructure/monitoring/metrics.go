package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Every Metrics owns its registry, so
// several instances (one per test) never collide. Record, Set, Add, Inc and
// Dec methods are no-ops on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Script metrics
	ScriptsInstalled prometheus.Gauge
	ScriptChanges    *prometheus.CounterVec

	// Broker metrics
	Invocations        *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	Denials            *prometheus.CounterVec
	PendingOperations  prometheus.Gauge
	BytesStreamed      *prometheus.CounterVec

	// Dependency metrics
	DependencyFetches *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalInvocations  int64   `json:"total_invocations"`
	TotalDenials      int64   `json:"total_denials"`
	PendingOperations int64   `json:"pending_operations"`
	ActiveConnections int64   `json:"active_connections"`
	InstalledScripts  int64   `json:"installed_scripts"`
	AvgRequestSeconds float64 `json:"avg_request_seconds"`
	UptimeSeconds     float64 `json:"uptime_seconds"`

	totalDuration float64
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptgate_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptgate_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		ScriptsInstalled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptgate_scripts_installed",
				Help: "Number of installed scripts",
			},
		),
		ScriptChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_script_changes_total",
				Help: "Script installs, updates and deletions",
			},
			[]string{"operation"},
		),

		Invocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_broker_invocations_total",
				Help: "Capability invocations by outcome",
			},
			[]string{"capability", "outcome"},
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptgate_broker_invocation_duration_seconds",
				Help:    "Time from invocation to terminal event",
				Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"capability"},
		),
		Denials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_broker_denials_total",
				Help: "Policy denials by reason",
			},
			[]string{"reason"},
		),
		PendingOperations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptgate_broker_pending_operations",
				Help: "Streaming operations in flight",
			},
		),
		BytesStreamed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_broker_bytes_streamed_total",
				Help: "Response bytes relayed to scripts",
			},
			[]string{"kind"},
		),

		DependencyFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_dependency_fetches_total",
				Help: "@require and @resource fetches by status",
			},
			[]string{"status"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptgate_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptgate_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scriptgate_uptime_seconds",
			Help: "Uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.totalDuration += duration.Seconds()
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordInvocation records a finished invocation. outcome is the terminal
// event kind: "completed", or the error kind.
func (m *Metrics) RecordInvocation(capability, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Invocations.WithLabelValues(capability, outcome).Inc()
	m.InvocationDuration.WithLabelValues(capability).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalInvocations++
	m.mu.Unlock()
}

// RecordDenial records a policy denial
func (m *Metrics) RecordDenial(reason string) {
	if m == nil {
		return
	}
	m.Denials.WithLabelValues(reason).Inc()

	m.mu.Lock()
	m.snapshot.TotalDenials++
	m.mu.Unlock()
}

// SetPendingOperations sets the number of in-flight streaming operations
func (m *Metrics) SetPendingOperations(count int) {
	if m == nil {
		return
	}
	m.PendingOperations.Set(float64(count))

	m.mu.Lock()
	m.snapshot.PendingOperations = int64(count)
	m.mu.Unlock()
}

// AddBytesStreamed counts response bytes relayed for kind (fetch, download)
func (m *Metrics) AddBytesStreamed(kind string, n int) {
	if m == nil {
		return
	}
	m.BytesStreamed.WithLabelValues(kind).Add(float64(n))
}

// RecordScriptChange records an install, update or delete
func (m *Metrics) RecordScriptChange(operation string) {
	if m == nil {
		return
	}
	m.ScriptChanges.WithLabelValues(operation).Inc()
}

// SetScriptsInstalled sets the number of installed scripts
func (m *Metrics) SetScriptsInstalled(count int) {
	if m == nil {
		return
	}
	m.ScriptsInstalled.Set(float64(count))

	m.mu.Lock()
	m.snapshot.InstalledScripts = int64(count)
	m.mu.Unlock()
}

// RecordDependencyFetch records a dependency fetch
func (m *Metrics) RecordDependencyFetch(status string) {
	if m == nil {
		return
	}
	m.DependencyFetches.WithLabelValues(status).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	if s.TotalRequests > 0 {
		s.AvgRequestSeconds = s.totalDuration / float64(s.TotalRequests)
	}
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
