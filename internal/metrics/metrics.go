// Package metrics exposes Prometheus instrumentation for the monitoring
// pipeline. Collectors are registered on the default registry; serve them
// with promhttp.Handler on the operational endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	alertsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chain_sentry",
			Name:      "alerts_processed_total",
			Help:      "Alerts accepted into the hub, by category.",
		},
		[]string{"category"},
	)

	alertsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chain_sentry",
			Name:      "alerts_deduplicated_total",
			Help:      "Alerts discarded because their id was already seen.",
		},
	)

	sinkDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chain_sentry",
			Name:      "sink_deliveries_total",
			Help:      "Sink delivery outcomes, by sink name and outcome.",
		},
		[]string{"sink", "outcome"},
	)

	assessments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chain_sentry",
			Name:      "assessments_total",
			Help:      "Completed risk assessments, by degraded state.",
		},
		[]string{"degraded"},
	)

	blocksObserved = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "chain_sentry",
			Name:      "blocks_observed_total",
			Help:      "Blocks consumed by the chain detector.",
		},
	)

	activeWindows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chain_sentry",
			Name:      "active_windows",
			Help:      "Addresses with a non-empty observation window.",
		},
	)
)

// AlertProcessed records an alert accepted into the hub.
func AlertProcessed(category string) {
	alertsProcessed.WithLabelValues(category).Inc()
}

// AlertDeduplicated records an alert dropped as a duplicate.
func AlertDeduplicated() {
	alertsDeduplicated.Inc()
}

// SinkDelivery records a sink delivery outcome ("delivered", "failed",
// or "dead_letter").
func SinkDelivery(sink, outcome string) {
	sinkDeliveries.WithLabelValues(sink, outcome).Inc()
}

// AssessmentCompleted records a finished assessment.
func AssessmentCompleted(degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	assessments.WithLabelValues(label).Inc()
}

// BlockObserved records one block consumed by the detector.
func BlockObserved() {
	blocksObserved.Inc()
}

// SetActiveWindows updates the active window gauge.
func SetActiveWindows(n int) {
	activeWindows.Set(float64(n))
}
