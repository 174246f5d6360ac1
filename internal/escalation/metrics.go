package escalation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdrill"

var escalations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "escalation",
		Name:      "handoffs_total",
		Help:      "Incident escalations by trigger",
	},
	[]string{"trigger"},
)

func recordEscalation(automatic bool) {
	trigger := "manual"
	if automatic {
		trigger = "auto"
	}
	escalations.WithLabelValues(trigger).Inc()
}
