// Package scheduler drives the periodic engine passes: SLA breach processing
// and automatic escalations.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/opsdrill/opsdrill/internal/pkg/metrics"
)

// GameSource lists the games the scheduled passes should cover.
type GameSource interface {
	ListActiveGameIDs(ctx context.Context) ([]string, error)
}

// Pass is one periodic maintenance job run per active game.
type Pass struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context, gameID string) error
}

// Config contains scheduler configuration.
type Config struct {
	// PassTimeout bounds one full sweep of a pass across all active games.
	// A sweep that exceeds it is abandoned and retried on the next tick.
	PassTimeout time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{PassTimeout: 30 * time.Second}
}

// Scheduler runs each registered pass on its own ticker. Sweeps of the same
// pass never overlap: a tick that fires while the previous sweep is still
// running is skipped and counted.
type Scheduler struct {
	config Config
	games  GameSource
	passes []Pass

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a scheduler over the given passes.
func New(config Config, games GameSource, passes ...Pass) *Scheduler {
	if config.PassTimeout <= 0 {
		config.PassTimeout = DefaultConfig().PassTimeout
	}
	return &Scheduler{
		config: config,
		games:  games,
		passes: passes,
		stopCh: make(chan struct{}),
	}
}

// Start launches one goroutine per pass.
func (s *Scheduler) Start(ctx context.Context) {
	for _, p := range s.passes {
		slog.Info("starting engine pass", "pass", p.Name, "interval", p.Interval)
		s.wg.Add(1)
		go s.run(ctx, p)
	}
}

// Stop gracefully stops all passes.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context, p Pass) {
	defer s.wg.Done()

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	var running sync.Mutex
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !running.TryLock() {
				metrics.EnginePassSkipped.WithLabelValues(p.Name).Inc()
				slog.Warn("skipping engine pass, previous run still active", "pass", p.Name)
				continue
			}
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				defer running.Unlock()
				s.sweep(ctx, p)
			}()
		}
	}
}

// sweep runs one pass over every active game. A failing game does not stop
// the sweep; passes are idempotent and the next tick retries the delta.
func (s *Scheduler) sweep(ctx context.Context, p Pass) {
	ctx, cancel := context.WithTimeout(ctx, s.config.PassTimeout)
	defer cancel()

	start := time.Now()
	gameIDs, err := s.games.ListActiveGameIDs(ctx)
	if err != nil {
		slog.Error("failed to list active games", "pass", p.Name, "error", err)
		return
	}

	for _, gameID := range gameIDs {
		if ctx.Err() != nil {
			slog.Warn("engine pass timed out, remaining games retried next tick", "pass", p.Name)
			return
		}
		if err := p.Run(ctx, gameID); err != nil {
			slog.Error("engine pass failed for game, will retry next tick",
				"pass", p.Name,
				"game_id", gameID,
				"error", err,
			)
		}
	}

	metrics.EnginePassDuration.WithLabelValues(p.Name).Observe(time.Since(start).Seconds())
}
