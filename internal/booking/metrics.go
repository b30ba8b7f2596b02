package booking

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("dentalbridge.internal.booking")

var (
	bookingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "booking",
		Name:      "requests_total",
		Help:      "Booking operations, by outcome.",
	}, []string{"outcome"})

	bookingConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dentalbridge",
		Subsystem: "booking",
		Name:      "conflicts_total",
		Help:      "Bookings rejected because a calendar block was already held.",
	})
)

func init() {
	prometheus.MustRegister(bookingsTotal)
	prometheus.MustRegister(bookingConflictsTotal)
}

// RegisterMetrics attaches the package collectors to a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(bookingsTotal)
	reg.MustRegister(bookingConflictsTotal)
}
