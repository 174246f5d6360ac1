package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WorkerConfig contains outbox worker configuration.
type WorkerConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// DefaultWorkerConfig returns default worker configuration.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    100,
		PollInterval: 5 * time.Second,
	}
}

// Worker drains undelivered events to the configured sink. A single goroutine
// does the draining so delivery preserves log order.
type Worker struct {
	config WorkerConfig
	repo   Repository
	sink   Sink

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWorker creates a new outbox worker.
func NewWorker(config WorkerConfig, repo Repository, sink Sink) *Worker {
	return &Worker{
		config: config,
		repo:   repo,
		sink:   sink,
		stopCh: make(chan struct{}),
	}
}

// Start launches the drain goroutine.
func (w *Worker) Start(ctx context.Context) {
	slog.Info("starting event outbox worker",
		"batch_size", w.config.BatchSize,
		"poll_interval", w.config.PollInterval,
	)

	w.wg.Add(1)
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("event outbox worker stopped")
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.drain(ctx)
		}
	}
}

// drain delivers one batch. Marking happens only after the sink accepted the
// batch, so a crash between the two re-delivers rather than drops.
func (w *Worker) drain(ctx context.Context) {
	batch, err := w.repo.FetchUndelivered(ctx, w.config.BatchSize)
	if err != nil {
		slog.Error("failed to fetch undelivered events", "error", err)
		return
	}
	if len(batch) == 0 {
		return
	}

	start := time.Now()
	if err := w.sink.Deliver(ctx, batch); err != nil {
		slog.Warn("event delivery failed, batch will be retried", "count", len(batch), "error", err)
		recordDelivery(0, len(batch))
		return
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ID
	}
	if err := w.repo.MarkDelivered(ctx, ids); err != nil {
		slog.Error("failed to mark events delivered", "error", err)
		return
	}

	recordDelivery(len(batch), 0)
	slog.Debug("delivered event batch", "count", len(batch), "duration", time.Since(start))
}
