// SPDX-License-Identifier: MIT

// Package metrics provides Prometheus metrics for the coherency core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_operations_started_total",
		Help: "Operations registered, by type",
	}, []string{"type"})

	operationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_operations_rejected_total",
		Help: "Operations rejected by the duplicate-submission guard, by type",
	}, []string{"type"})

	operationsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_operations_finished_total",
		Help: "Operations reaching a terminal state, by type and outcome",
	}, []string{"type", "outcome"}) // outcome=completed|cancelled

	operationsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_operations_evicted_total",
		Help: "Operation records evicted from the registry, by liveness at eviction time",
	}, []string{"state"}) // state=terminal|active

	operationsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unpuzzle_operations_in_flight",
		Help: "Operation records currently held by the registry",
	})
)

// IncOperationStarted records a successfully registered operation.
func IncOperationStarted(typ string) {
	operationsStarted.WithLabelValues(typ).Inc()
	operationsInFlight.Inc()
}

// IncOperationRejected records a duplicate-submission rejection.
func IncOperationRejected(typ string) {
	operationsRejected.WithLabelValues(typ).Inc()
}

// IncOperationFinished records an operation reaching a terminal state.
func IncOperationFinished(typ, outcome string) {
	operationsFinished.WithLabelValues(typ, outcome).Inc()
}

// IncOperationEvicted records a registry eviction.
// state is "terminal" for finished records, "active" for live ones.
func IncOperationEvicted(state string) {
	operationsEvicted.WithLabelValues(state).Inc()
	operationsInFlight.Dec()
}
