// Package synth calls the external speech-synthesis provider, one network
// call per batch, with bounded per-call timeouts and a local retry policy for
// rate limits and transient failures.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hakivo/briefcast/internal/dialogue"
)

// SampleFormat is the raw PCM format declared by the provider for a chunk.
type SampleFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Chunk is the raw audio produced for one batch, tagged with the batch index
// so the assembler can verify ordering.
type Chunk struct {
	Index  int
	Format SampleFormat
	PCM    []byte
}

// Provider performs a single synthesis call for one batch.
type Provider interface {
	Synthesize(ctx context.Context, batch dialogue.Batch) (Chunk, error)
}

var (
	// ErrRateLimited marks a provider rejection that should be retried after
	// a backoff interval.
	ErrRateLimited = errors.New("synthesis provider rate limited")

	// ErrTransient marks a retryable failure (5xx, network error, timeout).
	ErrTransient = errors.New("transient synthesis failure")

	// ErrSynthesisFailed is returned once a batch has exhausted its retry
	// budget. The whole job aborts; no partial audio is ever published.
	ErrSynthesisFailed = errors.New("synthesis failed")
)

// RateLimitError carries the provider-specified backoff, when one was given.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
