package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_events_reduced_total",
			Help: "Total number of events reduced by family and status",
		},
		[]string{"family", "status"},
	)

	groupsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_groups_failed_total",
			Help: "Total number of entity groups whose reduce failed",
		},
		[]string{"family"},
	)

	recordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_records_dropped_total",
			Help: "Total number of raw records dropped because they could not be converted",
		},
		[]string{"family"},
	)

	reduceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreducer_reduce_duration_seconds",
			Help:    "Duration of reducing one entity group, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreducer_batch_duration_seconds",
			Help:    "Duration of handling one record batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family"},
	)
)

func EventsReducedInc(family, status string) {
	eventsReduced.WithLabelValues(family, status).Inc()
}

func GroupFailedInc(family string) {
	groupsFailed.WithLabelValues(family).Inc()
}

func RecordDroppedInc(family string) {
	recordsDropped.WithLabelValues(family).Inc()
}

func ReduceDurationLog(family string, d time.Duration) {
	reduceDuration.WithLabelValues(family).Observe(d.Seconds())
}

func BatchDurationLog(family string, d time.Duration) {
	batchDuration.WithLabelValues(family).Observe(d.Seconds())
}
