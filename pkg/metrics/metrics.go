// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal counts resolution attempts by terminal decision
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "decisions_total",
			Help:      "Total resolution attempts by decision outcome",
		},
		[]string{"decision", "source_system"},
	)

	// ResolutionFailures counts attempts that failed before reaching a decision
	ResolutionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "failures_total",
			Help:      "Resolution attempts aborted by infrastructure failure",
		},
	)

	// ResolveDuration tracks resolution latency in seconds
	ResolveDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "duration_seconds",
			Help:      "Duration of resolution attempts in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	// MergesTotal counts merge operations by status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "operations_total",
			Help:      "Total merge operations by status",
		},
		[]string{"status"},
	)

	// ReviewActionsTotal counts review queue confirmations and rejections
	ReviewActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "review",
			Name:      "actions_total",
			Help:      "Total review queue actions",
		},
		[]string{"action"},
	)

	// KafkaMessagesTotal counts consumed candidate record messages by status
	KafkaMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_total",
			Help:      "Total consumed candidate record messages by status",
		},
		[]string{"status"},
	)
)
