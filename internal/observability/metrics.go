package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the service's Prometheus metrics: turn throughput,
// routing outcomes, per-pass LLM latency and token spend, tool executions,
// and housekeeping counters.
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: outcome (ok|error)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// PickerOutcomes counts routing decisions.
	// Labels: capability ("" is recorded as "none")
	PickerOutcomes *prometheus.CounterVec

	// LLMCallDuration measures completion latency in seconds.
	// Labels: pass (picker|actor_1|actor_2), model
	LLMCallDuration *prometheus.HistogramVec

	// LLMCallCounter counts completion calls.
	// Labels: pass, model, status (success|timeout|rate_limited|auth|server|canceled|other)
	LLMCallCounter *prometheus.CounterVec

	// LLMTokens tracks token consumption.
	// Labels: pass, model, type (prompt|completion)
	LLMTokens *prometheus.CounterVec

	// ToolExecutions counts tool invocations.
	// Labels: capability, tool, outcome (ok|error|synthesized)
	ToolExecutions *prometheus.CounterVec

	// ToolDuration measures tool execution time in seconds.
	// Labels: capability
	ToolDuration *prometheus.HistogramVec

	// WSClients gauges currently connected event-stream clients.
	WSClients prometheus.Gauge

	// RetentionSweeps counts sweeper runs and deleted sessions.
	// Labels: result (sessions_deleted|errors)
	RetentionSweeps *prometheus.CounterVec
}

// NewMetrics registers the metric set on a dedicated registry.
func NewMetrics() *Metrics {
	return newMetricsWith(prometheus.NewRegistry())
}

// NewMetricsOn registers the metric set on the given registry; the gateway
// serves that registry at /metrics.
func NewMetricsOn(reg *prometheus.Registry) *Metrics {
	return newMetricsWith(reg)
}

func newMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "turns_total",
			Help:      "Completed assistant turns by outcome.",
		}, []string{"outcome"}),

		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "switchboard",
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),

		PickerOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "picker_outcomes_total",
			Help:      "Routing decisions by chosen capability.",
		}, []string{"capability"}),

		LLMCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "switchboard",
			Name:      "llm_call_duration_seconds",
			Help:      "LLM completion latency per pass.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"pass", "model"}),

		LLMCallCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "llm_calls_total",
			Help:      "LLM completion calls per pass and status.",
		}, []string{"pass", "model", "status"}),

		LLMTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "llm_tokens_total",
			Help:      "Token consumption per pass.",
		}, []string{"pass", "model", "type"}),

		ToolExecutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "tool_executions_total",
			Help:      "Tool invocations by capability and outcome.",
		}, []string{"capability", "tool", "outcome"}),

		ToolDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "switchboard",
			Name:      "tool_duration_seconds",
			Help:      "Tool execution time.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"capability"}),

		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "switchboard",
			Name:      "ws_clients",
			Help:      "Connected event-stream clients.",
		}),

		RetentionSweeps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchboard",
			Name:      "retention_sweep_total",
			Help:      "Retention sweeper activity.",
		}, []string{"result"}),
	}
}

// RecordPickerOutcome normalizes the empty capability to "none".
func (m *Metrics) RecordPickerOutcome(capability string) {
	if capability == "" {
		capability = "none"
	}
	m.PickerOutcomes.WithLabelValues(capability).Inc()
}
