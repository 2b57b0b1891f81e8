package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for rategate
type Metrics struct {
	// Decision metrics
	DecisionsTotal   *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec

	// Denial metrics
	BlockedTotal  *prometheus.CounterVec
	RejectedTotal *prometheus.CounterVec

	// Store metrics
	StoreFailures *prometheus.CounterVec

	// Reputation metrics
	ListMutations *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance with a custom registry
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)

	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_decisions_total",
				Help: "Total number of rate limit decisions",
			},
			[]string{"route", "limit_type", "authenticated", "allowed"},
		),
		DecisionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rategate_decision_duration_seconds",
				Help:    "Decision pipeline latencies in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		BlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_blocked_total",
				Help: "Total number of requests denied by the blacklist",
			},
			[]string{"route"},
		),
		RejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_rejected_total",
				Help: "Total number of requests rejected by the limiter",
			},
			[]string{"route", "limit_type"},
		),
		StoreFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_store_failures_total",
				Help: "Total number of window store failures that failed open",
			},
			[]string{"op"},
		),
		ListMutations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_list_mutations_total",
				Help: "Total number of whitelist/blacklist mutations",
			},
			[]string{"list", "op"},
		),
	}
}

// NormalizeRoute normalizes the route label to avoid high cardinality
func NormalizeRoute(path string) string {
	const maxLength = 50
	if len(path) > maxLength {
		return path[:maxLength] + "..."
	}
	return path
}
