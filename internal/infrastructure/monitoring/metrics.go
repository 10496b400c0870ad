package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels an execution result class.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeScriptError    Outcome = "script_error"
	OutcomeTimeout        Outcome = "timeout"
	OutcomeMemoryExceeded Outcome = "memory_exceeded"
	OutcomeSpawnError     Outcome = "spawn_error"
	OutcomeProcessTimeout Outcome = "process_timeout"
	OutcomeOutputParse    Outcome = "output_parse"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Execution metrics
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	ExecutionsInFlight prometheus.Gauge

	// Bridge metrics
	BridgeCalls    *prometheus.CounterVec
	BridgeDuration *prometheus.HistogramVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for the JSON health endpoint
	snapshot Snapshot

	mu sync.RWMutex
}

// Snapshot holds current counter values for JSON health reporting.
type Snapshot struct {
	TotalExecutions  int64
	FailedExecutions int64
	TotalBridgeCalls int64
	TotalDuration    float64 // sum of execution durations in seconds
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbridge_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbridge_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		// Execution metrics
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_executions_total",
				Help: "Total number of script executions by outcome",
			},
			[]string{"outcome"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbridge_execution_duration_seconds",
				Help:    "Script execution duration in seconds, subprocess included",
				Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"outcome"},
		),
		ExecutionsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbridge_executions_in_flight",
				Help: "Number of script executions currently running",
			},
		),

		// Bridge metrics
		BridgeCalls: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_bridge_calls_total",
				Help: "Total number of upstream API calls made by scripts",
			},
			[]string{"method", "status"},
		),
		BridgeDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scriptbridge_bridge_duration_seconds",
				Help:    "Upstream API call duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scriptbridge_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
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
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// RecordExecution records a completed script execution
func (m *Metrics) RecordExecution(outcome Outcome, duration time.Duration) {
	m.ExecutionsTotal.WithLabelValues(string(outcome)).Inc()
	m.ExecutionDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalExecutions++
	m.snapshot.TotalDuration += duration.Seconds()
	if outcome != OutcomeSuccess {
		m.snapshot.FailedExecutions++
	}
	m.mu.Unlock()
}

// RecordBridgeCall records an upstream API call made by a script. Satisfies
// the bridge recorder interface.
func (m *Metrics) RecordBridgeCall(method string, status int, duration time.Duration) {
	m.BridgeCalls.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.BridgeDuration.WithLabelValues(method).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalBridgeCalls++
	m.mu.Unlock()
}

// GetSnapshot returns current counter values for the health endpoint.
func (m *Metrics) GetSnapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// StartTime returns when the collector was created.
func (m *Metrics) StartTime() time.Time {
	return m.startTime
}
