// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_messages_total",
			Help: "Total number of messages processed by the assistant",
		},
		[]string{"intent", "status"},
	)

	IntentConfidence = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_intent_confidence",
			Help:    "Confidence of the chosen intent",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"intent"},
	)

	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_actions_total",
			Help: "Total number of planned actions by outcome",
		},
		[]string{"action", "status", "error_code"},
	)

	ActionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "assistant_action_duration_seconds",
			Help: "Duration of action invocations in seconds",
		},
		[]string{"action"},
	)

	JobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assistant_jobs_active",
			Help: "Number of active process-message jobs",
		},
		[]string{"task_type"},
	)
)
