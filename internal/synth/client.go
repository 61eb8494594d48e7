package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/dialogue"
	"github.com/hakivo/briefcast/internal/observe"
)

// Client wraps a Provider with the per-call timeout, retry, and pacing policy.
// Batches are processed strictly sequentially to bound provider load and keep
// memory proportional to a single job.
type Client struct {
	provider Provider
	cfg      config.SynthesisConfig
	metrics  *observe.Metrics
	logger   *slog.Logger

	// sleep is replaced in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a synthesis client around the given provider.
func NewClient(provider Provider, cfg config.SynthesisConfig, metrics *observe.Metrics, log *slog.Logger) *Client {
	return &Client{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger:   log.With(slog.String("component", "synth-client")),
		sleep:    sleepCtx,
	}
}

// SynthesizeAll renders every batch in order. Any batch that exhausts its
// retry budget aborts the whole sequence with ErrSynthesisFailed.
func (c *Client) SynthesizeAll(ctx context.Context, batches []dialogue.Batch) ([]Chunk, error) {
	chunks := make([]Chunk, 0, len(batches))
	for i, batch := range batches {
		if i > 0 && c.cfg.BatchPause() > 0 {
			if err := c.sleep(ctx, c.cfg.BatchPause()); err != nil {
				return nil, err
			}
		}
		chunk, err := c.synthesizeBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		c.metrics.RecordBatch(ctx)
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// synthesizeBatch performs up to MaxAttempts calls for one batch. Rate limits
// wait out the provider-specified (or configured) backoff; other transient
// failures retry after a shorter fixed delay. The same batch is always
// retried; batches are never skipped.
func (c *Client) synthesizeBatch(ctx context.Context, batch dialogue.Batch) (Chunk, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		chunk, err := c.callOnce(ctx, batch)
		if err == nil {
			return chunk, nil
		}
		lastErr = err

		var delay time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			delay = c.cfg.RateLimitBackoff()
			var rl *RateLimitError
			if errors.As(err, &rl) && rl.RetryAfter > 0 {
				delay = rl.RetryAfter
			}
			c.metrics.RecordRetry(ctx, "rate_limited")
		case errors.Is(err, ErrTransient):
			delay = c.cfg.TransientBackoff()
			c.metrics.RecordRetry(ctx, "transient")
		default:
			// Terminal provider rejection: retrying cannot help.
			return Chunk{}, fmt.Errorf("%w: batch %d: %v", ErrSynthesisFailed, batch.Index, err)
		}

		if attempt == c.cfg.MaxAttempts {
			break
		}
		c.logger.Warn("retrying batch",
			slog.Int("batch", batch.Index),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
		if err := c.sleep(ctx, delay); err != nil {
			return Chunk{}, err
		}
	}
	return Chunk{}, fmt.Errorf("%w: batch %d exhausted %d attempts: %v",
		ErrSynthesisFailed, batch.Index, c.cfg.MaxAttempts, lastErr)
}

func (c *Client) callOnce(ctx context.Context, batch dialogue.Batch) (Chunk, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout())
	defer cancel()
	return c.provider.Synthesize(callCtx, batch)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
