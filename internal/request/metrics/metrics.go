package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for transition attempts.
const (
	OutcomeApplied   = "applied"
	OutcomeForbidden = "forbidden"
	OutcomeInvalid   = "invalid_transition"
	OutcomeDuplicate = "duplicate_conflict"
	OutcomeFailed    = "failed"
)

// Metrics provides observability for the request lifecycle.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	TransitionDuration *prometheus.HistogramVec
	DuplicateBlocks    prometheus.Counter
	GoldenSwaps        prometheus.Counter
	RequestsCreated    *prometheus.CounterVec
}

// New registers the request metrics with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_request_transitions_total",
			Help: "Lifecycle transition attempts by action and outcome",
		}, []string{"action", "outcome"}),
		TransitionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "golden_request_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions including the store transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"action"}),
		DuplicateBlocks: factory.NewCounter(prometheus.CounterOpts{
			Name: "golden_request_duplicate_blocks_total",
			Help: "Submissions blocked by an existing active golden record",
		}),
		GoldenSwaps: factory.NewCounter(prometheus.CounterOpts{
			Name: "golden_request_golden_swaps_total",
			Help: "Golden edits activated, superseding their source record",
		}),
		RequestsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "golden_requests_created_total",
			Help: "Requests created by origin",
		}, []string{"origin"}),
	}
}

// ObserveTransition records one attempt. Call with time.Now() taken at the
// start of the operation.
func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementDuplicateBlock() {
	m.DuplicateBlocks.Inc()
}

func (m *Metrics) IncrementGoldenSwap() {
	m.GoldenSwaps.Inc()
}

func (m *Metrics) IncrementCreated(origin string) {
	m.RequestsCreated.WithLabelValues(origin).Inc()
}
