package events

import (
	"context"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// Sink receives drained event batches. Delivery is at-least-once: a batch that
// errors is retried in full on the next poll.
type Sink interface {
	Deliver(ctx context.Context, events []domain.GameEvent) error
}
