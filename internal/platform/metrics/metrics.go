package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the HTTP-level Prometheus metrics for the application.
type Metrics struct {
	RequestDuration *prometheus.HistogramVec
	RequestsTotal   *prometheus.CounterVec
	PanicsRecovered prometheus.Counter
}

// New creates and registers the HTTP metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "golden_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern and method",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_http_requests_total",
			Help: "HTTP requests by route pattern, method and status class",
		}, []string{"route", "method", "status"}),
		PanicsRecovered: factory.NewCounter(prometheus.CounterOpts{
			Name: "golden_http_panics_recovered_total",
			Help: "Handler panics turned into 500 responses",
		}),
	}
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method, statusClass string, start time.Time) {
	m.RequestDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
	m.RequestsTotal.WithLabelValues(route, method, statusClass).Inc()
}

func (m *Metrics) IncrementPanics() {
	m.PanicsRecovered.Inc()
}
