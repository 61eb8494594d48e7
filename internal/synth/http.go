package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/dialogue"
)

// httpProvider talks to a speech-synthesis HTTP API that accepts an ordered
// list of voiced lines and returns raw PCM audio in one response.
type httpProvider struct {
	cfg        config.SynthesisConfig
	httpClient *http.Client
}

// NewHTTPProvider creates a Provider backed by the configured HTTP endpoint.
func NewHTTPProvider(cfg config.SynthesisConfig) Provider {
	return &httpProvider{
		cfg: cfg,
		// Per-call deadlines come from the caller's context; the transport
		// itself stays unbounded.
		httpClient: &http.Client{},
	}
}

type dialogueRequest struct {
	Lines        []dialogue.Line `json:"inputs"`
	OutputFormat string          `json:"output_format,omitempty"`
}

func (p *httpProvider) Synthesize(ctx context.Context, batch dialogue.Batch) (Chunk, error) {
	payload := dialogueRequest{Lines: batch.Lines, OutputFormat: p.cfg.OutputFormat}
	body, err := json.Marshal(payload)
	if err != nil {
		return Chunk{}, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/v1/text-to-dialogue", bytes.NewReader(body))
	if err != nil {
		return Chunk{}, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/octet-stream")
	if p.cfg.APIKey != "" {
		req.Header.Set("xi-api-key", p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// A tripped per-call deadline is retryable, not a job failure.
			return Chunk{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		}
		return Chunk{}, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return Chunk{}, &RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return Chunk{}, fmt.Errorf("%w: provider returned status %d", ErrTransient, resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Chunk{}, fmt.Errorf("provider rejected batch %d: status %d: %s", batch.Index, resp.StatusCode, detail)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: read provider response: %v", ErrTransient, err)
	}
	if len(pcm) == 0 {
		return Chunk{}, fmt.Errorf("provider returned empty audio for batch %d", batch.Index)
	}

	return Chunk{Index: batch.Index, Format: p.responseFormat(resp.Header), PCM: pcm}, nil
}

// responseFormat reads the declared sample format from response headers,
// falling back to the configured defaults when the provider omits them.
func (p *httpProvider) responseFormat(h http.Header) SampleFormat {
	format := SampleFormat{
		SampleRate: p.cfg.SampleRate,
		Channels:   p.cfg.Channels,
		BitDepth:   p.cfg.BitDepth,
	}
	if v, err := strconv.Atoi(h.Get("X-Sample-Rate")); err == nil && v > 0 {
		format.SampleRate = v
	}
	if v, err := strconv.Atoi(h.Get("X-Channels")); err == nil && v > 0 {
		format.Channels = v
	}
	if v, err := strconv.Atoi(h.Get("X-Bit-Depth")); err == nil && v > 0 {
		format.BitDepth = v
	}
	return format
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	return 0
}
