package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dentalbridge.internal.orchestrator")

var (
	plansTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "orchestrator",
		Name:      "plans_total",
		Help:      "Plans built, by suggested action.",
	}, []string{"action"})

	issuesRoutedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "orchestrator",
		Name:      "issues_routed_total",
		Help:      "Issues entering the routing loop, by classified condition.",
	}, []string{"condition"})
)

func init() {
	prometheus.MustRegister(plansTotal)
	prometheus.MustRegister(issuesRoutedTotal)
}

// RegisterMetrics attaches the package collectors to a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(plansTotal)
	reg.MustRegister(issuesRoutedTotal)
}
