// Package observability holds CineBot's Prometheus instruments and its
// OpenTelemetry tracing setup.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cinebot"

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Turns            *prometheus.CounterVec
	ModelCalls       *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	SkippedToolCalls prometheus.Counter
	TurnDuration     *prometheus.HistogramVec
	ActiveSessions   prometheus.Gauge
	DependencyUp     *prometheus.GaugeVec
}

// NewMetrics registers the instruments with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Turns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns processed by mode.",
		}, []string{"mode"}),
		ModelCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_calls_total",
			Help:      "Model invocations by mode and phase.",
		}, []string{"mode", "phase"}),
		ToolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool executions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		SkippedToolCalls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_tool_calls_total",
			Help:      "Tool calls naming an unregistered tool.",
		}),
		TurnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a user turn by mode.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"mode"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of open chat sessions.",
		}),
		DependencyUp: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "Whether an external dependency answered its last probe (1) or not (0).",
		}, []string{"service"}),
	}
}

// ObserveTurn records a finished turn.
func (m *Metrics) ObserveTurn(mode string, d time.Duration) {
	if m == nil {
		return
	}
	m.Turns.WithLabelValues(mode).Inc()
	m.TurnDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ModelCall counts one model invocation.
func (m *Metrics) ModelCall(mode, phase string) {
	if m == nil {
		return
	}
	m.ModelCalls.WithLabelValues(mode, phase).Inc()
}

// ToolCall counts one tool execution.
func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
}

// SkippedToolCall counts a call to an unregistered tool.
func (m *Metrics) SkippedToolCall() {
	if m == nil {
		return
	}
	m.SkippedToolCalls.Inc()
}

// SessionOpened increments the active session gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

// SessionClosed decrements the active session gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// DependencyStatus records the latest probe outcome for service.
func (m *Metrics) DependencyStatus(service string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.DependencyUp.WithLabelValues(service).Set(v)
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
