package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest metrics
	batchesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_batches_dispatched_total",
			Help: "Total number of record batches dispatched to listeners",
		},
		[]string{"blockchain", "group", "result"},
	)

	recordsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_records_dispatched_total",
			Help: "Total number of raw log records dispatched to listeners",
		},
		[]string{"blockchain", "group"},
	)

	LastDispatchedBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreducer_last_dispatched_block",
			Help: "The highest block number seen in a dispatched batch",
		},
		[]string{"blockchain", "group"},
	)

	// System metrics
	Uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)

	ComponentHealth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreducer_component_health",
			Help: "Component health status (1=healthy, 0=unhealthy)",
		},
		[]string{"component"},
	)

	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_goroutines",
			Help: "Number of active goroutines",
		},
	)

	MemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainreducer_memory_usage_bytes",
			Help: "Memory usage statistics",
		},
		[]string{"type"},
	)

	startTime = time.Now()
)

func BatchDispatchedInc(blockchain, group string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	batchesDispatched.WithLabelValues(blockchain, group, result).Inc()
}

func RecordsDispatchedInc(blockchain, group string, count int) {
	recordsDispatched.WithLabelValues(blockchain, group).Add(float64(count))
}

func LastDispatchedBlockSet(blockchain, group string, block uint64) {
	LastDispatchedBlock.WithLabelValues(blockchain, group).Set(float64(block))
}

func ComponentHealthSet(component string, healthy bool) {
	boolAsFloat := float64(1)
	if !healthy {
		boolAsFloat = 0
	}

	ComponentHealth.WithLabelValues(component).Set(boolAsFloat)
}

// UpdateSystemMetrics updates runtime system metrics.
// This should be called periodically (e.g., every 15 seconds).
func UpdateSystemMetrics() {
	Uptime.Set(time.Since(startTime).Seconds())

	Goroutines.Set(float64(runtime.NumGoroutine()))

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	MemoryUsage.WithLabelValues("alloc").Set(float64(m.Alloc))
	MemoryUsage.WithLabelValues("total_alloc").Set(float64(m.TotalAlloc))
	MemoryUsage.WithLabelValues("sys").Set(float64(m.Sys))
	MemoryUsage.WithLabelValues("heap_inuse").Set(float64(m.HeapInuse))
}
