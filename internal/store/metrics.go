package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_store_queries_total",
			Help: "Total number of entity store and journal queries",
		},
		[]string{"family", "op"},
	)

	storeQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreducer_store_query_duration_seconds",
			Help:    "Duration of entity store and journal queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"family", "op"},
	)

	storeConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_store_conflicts_total",
			Help: "Total number of writes rejected by the version check",
		},
		[]string{"family"},
	)

	journaledEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_journal_events_total",
			Help: "Total number of events appended to the journal",
		},
		[]string{"family"},
	)
)

// observe records one query and returns the function that records its duration.
func observe(family, op string) func() {
	storeQueries.WithLabelValues(family, op).Inc()
	start := time.Now()
	return func() {
		storeQueryDuration.WithLabelValues(family, op).Observe(time.Since(start).Seconds())
	}
}

func StoreConflictInc(family string) {
	storeConflicts.WithLabelValues(family).Inc()
}

func JournaledEventsInc(family string, count int) {
	journaledEvents.WithLabelValues(family).Add(float64(count))
}
