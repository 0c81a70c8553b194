package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	updates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_entity_updates_total",
			Help: "Total number of entity updates by outcome",
		},
		[]string{"family", "outcome"},
	)

	conflictsRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_entity_conflicts_retried_total",
			Help: "Total number of folds re-run after a version conflict",
		},
		[]string{"family"},
	)

	updateAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreducer_entity_update_attempts",
			Help:    "Number of attempts needed by an entity update",
			Buckets: []float64{1, 2, 3, 5, 8, 13},
		},
		[]string{"family"},
	)
)

func UpdateOutcomeInc(family, outcome string) {
	updates.WithLabelValues(family, outcome).Inc()
}

func ConflictRetriedInc(family string) {
	conflictsRetried.WithLabelValues(family).Inc()
}

func UpdateAttemptsLog(family string, attempts int) {
	updateAttempts.WithLabelValues(family).Observe(float64(attempts))
}
