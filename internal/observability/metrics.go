package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector holds all Prometheus metrics for Fundi.
// Uses a custom registry — no global state.
type MetricsCollector struct {
	Registry *prometheus.Registry

	// LLM metrics.
	LLMRequestsTotal   *prometheus.CounterVec
	LLMRequestDuration *prometheus.HistogramVec
	LLMTokensUsed      *prometheus.CounterVec

	// Sandbox metrics.
	SandboxExecutionsTotal   *prometheus.CounterVec
	SandboxExecutionDuration *prometheus.HistogramVec
	SandboxInputsDetected    prometheus.Counter

	// Repair loop metrics.
	RepairSessionsTotal  *prometheus.CounterVec
	RepairAttemptsPerRun prometheus.Histogram

	// HTTP gateway metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics.
	ActiveRequests prometheus.Gauge
}

// NewMetricsCollector creates a MetricsCollector with all metrics registered
// on a custom prometheus.Registry.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()

	m := &MetricsCollector{
		Registry: reg,

		LLMRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "Total LLM API requests.",
		}, []string{"provider", "model", "status"}),

		LLMRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundi",
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "LLM API request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),

		LLMTokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "llm",
			Name:      "tokens_used_total",
			Help:      "Total LLM tokens consumed.",
		}, []string{"provider", "model", "direction"}),

		SandboxExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "sandbox",
			Name:      "executions_total",
			Help:      "Total sandbox executions by outcome.",
		}, []string{"outcome"}),

		SandboxExecutionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundi",
			Subsystem: "sandbox",
			Name:      "execution_duration_seconds",
			Help:      "Sandbox execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"outcome"}),

		SandboxInputsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "sandbox",
			Name:      "inputs_detected_total",
			Help:      "Total interactive input() sites detected in executed code.",
		}),

		RepairSessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "repair",
			Name:      "sessions_total",
			Help:      "Total repair sessions by terminal state.",
		}, []string{"state"}),

		RepairAttemptsPerRun: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fundi",
			Subsystem: "repair",
			Name:      "attempts_per_session",
			Help:      "Number of execution attempts per repair session.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 10},
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fundi",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "path", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fundi",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fundi",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),
	}

	// Register all collectors.
	reg.MustRegister(
		m.LLMRequestsTotal,
		m.LLMRequestDuration,
		m.LLMTokensUsed,
		m.SandboxExecutionsTotal,
		m.SandboxExecutionDuration,
		m.SandboxInputsDetected,
		m.RepairSessionsTotal,
		m.RepairAttemptsPerRun,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ActiveRequests,
	)

	return m
}
