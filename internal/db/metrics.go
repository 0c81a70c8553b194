package db

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	maintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_maintenance_runs_total",
			Help: "Database maintenance runs by result",
		},
		[]string{"result"},
	)

	maintenanceStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chainreducer_maintenance_step_duration_seconds",
			Help:    "Duration of each database maintenance step",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	maintenanceStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_maintenance_step_failures_total",
			Help: "Failed database maintenance steps",
		},
		[]string{"step"},
	)

	maintenanceLastRun = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_maintenance_last_run_timestamp",
			Help: "Unix time of the last finished maintenance run",
		},
	)

	spaceReclaimed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_maintenance_space_reclaimed_bytes",
			Help: "Bytes reclaimed by the last maintenance run",
		},
	)

	dbSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_db_size_bytes",
			Help: "Size of the database including its WAL files",
		},
	)
)

func observeStep(step string, took time.Duration, err error) {
	maintenanceStepDuration.WithLabelValues(step).Observe(took.Seconds())
	if err != nil {
		maintenanceStepFailures.WithLabelValues(step).Inc()
	}
}

func observeRun(err error, before, after int64) {
	result := "success"
	if err != nil {
		result = "error"
	}
	maintenanceRuns.WithLabelValues(result).Inc()
	maintenanceLastRun.Set(float64(time.Now().Unix()))

	dbSize.Set(float64(after))
	if before > after {
		spaceReclaimed.Set(float64(before - after))
	} else {
		spaceReclaimed.Set(0)
	}
}
