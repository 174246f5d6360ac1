package sla

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdrill"

var (
	breachesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "breaches_total",
			Help:      "Incidents marked as SLA breached",
		},
	)
	prioritiesEscalated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sla",
			Name:      "priority_escalations_total",
			Help:      "Priority bumps caused by SLA breaches",
		},
	)
)

func recordBreaches(breached, escalated int) {
	breachesProcessed.Add(float64(breached))
	prioritiesEscalated.Add(float64(escalated))
}
