package querycalc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "cdlcore"

const metricsSubsystem = "querycalc"

// Metrics counts propagation work in a Graph.
type Metrics struct {
	// DeltasForwarded counts match deltas delivered to consumers.
	// Labels: op (add, remove, clear)
	DeltasForwarded *prometheus.CounterVec

	// OrderingRefreshes counts refreshOrdering notifications flushed.
	OrderingRefreshes prometheus.Counter

	// Repositions counts elements moved in place after their compared
	// values changed.
	Repositions prometheus.Counter

	// ProjectionRegistrations counts projection (re)registrations with
	// the indexer.
	ProjectionRegistrations prometheus.Counter
}

// NewMetrics creates the graph metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DeltasForwarded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_forwarded_total",
			Help:      "Match deltas forwarded to consumers by operation",
		}, []string{"op"}),
		OrderingRefreshes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "ordering_refreshes_total",
			Help:      "Ordering refresh notifications delivered",
		}),
		Repositions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "repositions_total",
			Help:      "Ordered elements repositioned after value changes",
		}),
		ProjectionRegistrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "projection_registrations_total",
			Help:      "Projection registrations made with the indexer",
		}),
	}
}
