package triage

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var llmTracer = otel.Tracer("dentalbridge.internal.triage")

var llmLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "dentalbridge",
		Subsystem: "triage",
		Name:      "llm_latency_seconds",
		Help:      "Latency of LLM feature extractions",
		// Focus on sub-10s buckets with a few higher ones for visibility.
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 4, 5, 6, 8, 10, 15, 20, 30},
	},
	[]string{"model", "status"},
)

var llmTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "triage",
		Name:      "llm_tokens_total",
		Help:      "Tokens used by the extraction LLM",
	},
	[]string{"model", "type"}, // type: input, output, total
)

var triageDecisionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "triage",
		Name:      "decision_total",
		Help:      "Counts analyzer verdicts by action and deciding tier",
	},
	[]string{"action", "tier"}, // tier: empty, red_flag, chatter, llm, merge, fallback
)

func init() {
	prometheus.MustRegister(llmLatency)
	prometheus.MustRegister(llmTokensTotal)
	prometheus.MustRegister(triageDecisionTotal)
}

// RegisterMetrics registers triage metrics with a custom registry.
// Use this when exposing a non-default registry (e.g., HTTP handlers with a private registry).
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(llmLatency, llmTokensTotal, triageDecisionTotal)
}
