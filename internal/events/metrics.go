package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdrill"

var delivered = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "events",
		Name:      "delivered_total",
		Help:      "Outbox events by delivery outcome",
	},
	[]string{"status"},
)

func recordDelivery(ok, failed int) {
	if ok > 0 {
		delivered.WithLabelValues("delivered").Add(float64(ok))
	}
	if failed > 0 {
		delivered.WithLabelValues("failed").Add(float64(failed))
	}
}
