package scheduler

import (
	"context"
	"time"

	"github.com/opsdrill/opsdrill/internal/escalation"
	"github.com/opsdrill/opsdrill/internal/sla"
)

// SLAPass wraps the SLA monitor as a scheduled pass.
func SLAPass(monitor *sla.Monitor, interval time.Duration) Pass {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return Pass{
		Name:     "sla",
		Interval: interval,
		Run: func(ctx context.Context, gameID string) error {
			_, err := monitor.CheckAndProcessBreaches(ctx, gameID)
			return err
		},
	}
}

// EscalationPass wraps the escalation engine as a scheduled pass.
func EscalationPass(engine *escalation.Engine, interval time.Duration) Pass {
	if interval <= 0 {
		interval = time.Minute
	}
	return Pass{
		Name:     "escalation",
		Interval: interval,
		Run: func(ctx context.Context, gameID string) error {
			_, err := engine.ProcessAutoEscalations(ctx, gameID)
			return err
		},
	}
}
