package notify

import "github.com/prometheus/client_golang/prometheus"

var emailsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "dentalbridge",
	Subsystem: "notify",
	Name:      "emails_sent_total",
	Help:      "Emails delivered, by kind.",
}, []string{"kind"})

func init() {
	prometheus.MustRegister(emailsSentTotal)
}

// RegisterMetrics attaches the package collectors to a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(emailsSentTotal)
}
