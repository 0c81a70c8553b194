package notifier

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var notifications = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "chainreducer_notifications_total",
		Help: "Total number of change notifications by outcome",
	},
	[]string{"family", "status"},
)

func NotificationsInc(family string, ok bool) {
	status := "success"
	if !ok {
		status = "error"
	}
	notifications.WithLabelValues(family, status).Inc()
}
