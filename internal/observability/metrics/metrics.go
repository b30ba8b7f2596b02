// Package metrics holds the HTTP-surface Prometheus instruments. Domain
// packages register their own collectors; this one covers the request path.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// RequestMetrics exposes counters/histograms for the HTTP API.
type RequestMetrics struct {
	requestsTotal  *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	inflight       prometheus.Gauge
}

func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dentalbridge",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by route and status.",
		}, []string{"route", "method", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dentalbridge",
			Subsystem: "http",
			Name:      "request_latency_seconds",
			Help:      "Latency of HTTP request handling.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dentalbridge",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Requests currently being handled.",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestLatency, m.inflight)
	return m
}

func (m *RequestMetrics) ObserveRequest(route, method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, status).Inc()
	m.requestLatency.WithLabelValues(route).Observe(seconds)
}

func (m *RequestMetrics) RequestStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *RequestMetrics) RequestDone() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}
