// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_mutations_total",
		Help: "Optimistic mutations by kind and outcome",
	}, []string{"kind", "outcome"}) // outcome=committed|rolled_back|cancelled

	mutationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "unpuzzle_mutation_duration_seconds",
		Help:    "Wall time from speculative apply to terminal phase",
		Buckets: prometheus.ExponentialBuckets(0.005, 3, 8),
	}, []string{"kind"})

	reconciliations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_reconciliations_total",
		Help: "Background reconciliation refetches by outcome",
	}, []string{"outcome"}) // outcome=applied|skipped|failed

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unpuzzle_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state, 0 otherwise)",
	}, []string{"name", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_circuit_breaker_trips_total",
		Help: "Circuit breaker trips by name and reason",
	}, []string{"name", "reason"})
)

// IncMutation records a mutation reaching a terminal phase.
func IncMutation(kind, outcome string) {
	mutationsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveMutationDuration records mutation wall time.
func ObserveMutationDuration(kind string, seconds float64) {
	mutationDuration.WithLabelValues(kind).Observe(seconds)
}

// IncReconciliation records a background reconciliation outcome.
func IncReconciliation(outcome string) {
	reconciliations.WithLabelValues(outcome).Inc()
}

// SetCircuitBreakerState marks the active breaker state.
func SetCircuitBreakerState(name, state string) {
	for _, s := range []string{"closed", "open", "half-open"} {
		v := 0.0
		if s == state {
			v = 1.0
		}
		circuitBreakerState.WithLabelValues(name, s).Set(v)
	}
}

// RecordCircuitBreakerTrip records a breaker trip.
func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}
