// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lockAcquisitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_lock_acquisitions_total",
		Help: "Lock acquisition attempts by outcome",
	}, []string{"outcome"}) // outcome=granted|timeout

	lockHoldSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "unpuzzle_lock_hold_seconds",
		Help:    "Time a resource lock was held before release",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	lockWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unpuzzle_lock_waiters",
		Help: "Callers currently queued for a resource lock",
	})

	locksHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unpuzzle_locks_held",
		Help: "Resource locks currently held",
	})
)

// IncLockAcquisition records a lock acquisition attempt outcome.
func IncLockAcquisition(outcome string) {
	lockAcquisitions.WithLabelValues(outcome).Inc()
}

// ObserveLockHold records how long a lock was held.
func ObserveLockHold(seconds float64) {
	lockHoldSeconds.Observe(seconds)
}

// AddLockWaiters adjusts the queued-waiter gauge.
func AddLockWaiters(delta float64) {
	lockWaiters.Add(delta)
}

// AddLocksHeld adjusts the held-lock gauge.
func AddLocksHeld(delta float64) {
	locksHeld.Add(delta)
}
