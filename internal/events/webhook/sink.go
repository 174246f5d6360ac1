// Package webhook delivers event batches to an external HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/opsdrill/opsdrill/internal/domain"
)

// Config contains webhook sink configuration.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	// RatePerSecond caps outgoing batches so a slow dashboard backend is not
	// hammered by a backlog drain. Zero disables the limit.
	RatePerSecond float64
}

// Sink posts event batches as JSON to a configured endpoint.
type Sink struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

// NewSink creates a webhook sink.
func NewSink(config Config) *Sink {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), 1)
	}
	return &Sink{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: limiter,
	}
}

// Deliver posts one batch. Any non-2xx response fails the whole batch so the
// worker retries it.
func (s *Sink) Deliver(ctx context.Context, events []domain.GameEvent) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook responded %d", resp.StatusCode)
	}
	return nil
}
