// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	progressEventsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unpuzzle_progress_events_applied_total",
		Help: "Progress events folded into the entity store",
	})

	progressEventsStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unpuzzle_progress_events_stale_total",
		Help: "Progress events discarded by the monotonicity guard",
	})

	busDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "unpuzzle_bus_dropped_total",
		Help: "Broadcast events dropped, by topic and reason",
	}, []string{"topic", "reason"})

	busSubscribers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "unpuzzle_bus_subscribers",
		Help: "Active broadcast subscribers per topic",
	}, []string{"topic"})
)

// IncProgressApplied records a progress event applied to the store.
func IncProgressApplied() {
	progressEventsApplied.Inc()
}

// IncProgressStale records a progress event dropped as out of order.
func IncProgressStale() {
	progressEventsStale.Inc()
}

// IncBusDropReason records a dropped broadcast event with a concrete reason.
func IncBusDropReason(topic, reason string) {
	if topic == "" {
		topic = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	busDropped.WithLabelValues(topic, reason).Inc()
}

// AddBusSubscribers adjusts the subscriber gauge for a topic.
func AddBusSubscribers(topic string, delta float64) {
	busSubscribers.WithLabelValues(topic).Add(delta)
}
