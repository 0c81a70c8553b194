package autoreduce

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	markedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_auto_reduce_marked_total",
			Help: "Total number of entities marked for auto-reduce",
		},
		[]string{"family", "reason"},
	)

	sweptTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainreducer_auto_reduce_swept_total",
			Help: "Total number of markers processed by the sweeper by outcome",
		},
		[]string{"status"},
	)

	pendingMarkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainreducer_auto_reduce_pending_markers",
			Help: "Number of markers waiting for the sweeper",
		},
	)
)

func MarkedInc(family, reason string) {
	markedTotal.WithLabelValues(family, reason).Inc()
}

func SweptInc(ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	sweptTotal.WithLabelValues(status).Inc()
}

func PendingMarkersLog(count int) {
	pendingMarkers.Set(float64(count))
}
