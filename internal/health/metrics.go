package health

import (
	"github.com/opsdrill/opsdrill/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "opsdrill"

var (
	gameHealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "game_score",
			Help:      "Criticality-weighted health score per game (0-100)",
		},
		[]string{"game_id"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "status_transitions_total",
			Help:      "Service status transitions written by the aggregator",
		},
		[]string{"from", "to"},
	)
)

// recordStatusTransition records one persisted status change.
func recordStatusTransition(from, to domain.ServiceStatus) {
	statusTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// recordGameHealth updates the per-game health gauge.
func recordGameHealth(gameID string, score int) {
	gameHealthScore.WithLabelValues(gameID).Set(float64(score))
}
