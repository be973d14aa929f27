package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "golden/pkg/platform/audit"
)

type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the emitter metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_audit_events_emitted_total",
			Help: "Audit events persisted, by category",
		}, []string{"category"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "golden_audit_persist_failures_total",
			Help: "Audit events that failed to persist",
		}),
		PersistDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "golden_audit_persist_duration_seconds",
			Help:    "Time spent persisting an audit event",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
	}
}

func (m *Metrics) IncEventsEmitted(category audit.EventCategory) {
	m.EventsEmitted.WithLabelValues(string(category)).Inc()
}

func (m *Metrics) IncPersistFailures() {
	m.PersistFailures.Inc()
}

func (m *Metrics) ObservePersistDuration(seconds float64) {
	m.PersistDuration.Observe(seconds)
}
