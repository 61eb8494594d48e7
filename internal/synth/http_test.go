package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/dialogue"
)

func httpTestConfig(endpoint string) config.SynthesisConfig {
	return config.SynthesisConfig{
		Mode:         "http",
		Endpoint:     endpoint,
		APIKey:       "secret",
		OutputFormat: "pcm_22050",
		SampleRate:   22050,
		Channels:     1,
		BitDepth:     16,
	}
}

func testBatch() dialogue.Batch {
	return dialogue.Batch{
		Index: 2,
		Lines: []dialogue.Line{
			{Text: "Here is the news.", VoiceID: "host-m-1"},
			{Text: "Tell me more.", VoiceID: "host-f-1"},
		},
	}
}

func TestHTTPProviderSuccess(t *testing.T) {
	pcm := bytes.Repeat([]byte{0x01, 0x02}, 32)
	var gotRequest dialogueRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-dialogue" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("xi-api-key") != "secret" {
			t.Errorf("api key header = %q", r.Header.Get("xi-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("X-Sample-Rate", "44100")
		w.Header().Set("X-Channels", "2")
		w.Write(pcm)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	chunk, err := provider.Synthesize(context.Background(), testBatch())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if chunk.Index != 2 {
		t.Errorf("chunk index = %d, want 2", chunk.Index)
	}
	if !bytes.Equal(chunk.PCM, pcm) {
		t.Errorf("pcm payload mismatch: got %d bytes", len(chunk.PCM))
	}
	// Headers override configured defaults; bit depth falls back.
	want := SampleFormat{SampleRate: 44100, Channels: 2, BitDepth: 16}
	if chunk.Format != want {
		t.Errorf("format = %+v, want %+v", chunk.Format, want)
	}
	if len(gotRequest.Lines) != 2 || gotRequest.Lines[0].VoiceID != "host-m-1" {
		t.Errorf("request lines = %+v", gotRequest.Lines)
	}
	if gotRequest.OutputFormat != "pcm_22050" {
		t.Errorf("output format = %q", gotRequest.OutputFormat)
	}
}

func TestHTTPProviderRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	_, err := provider.Synthesize(context.Background(), testBatch())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err %v is not a RateLimitError", err)
	}
	if rl.RetryAfter != 17*time.Second {
		t.Errorf("retry-after = %v, want 17s", rl.RetryAfter)
	}
}

func TestHTTPProviderRateLimitedWithoutRetryAfter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	_, err := provider.Synthesize(context.Background(), testBatch())
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("err %v is not a RateLimitError", err)
	}
	if rl.RetryAfter != 0 {
		t.Errorf("retry-after = %v, want 0", rl.RetryAfter)
	}
}

func TestHTTPProviderServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	_, err := provider.Synthesize(context.Background(), testBatch())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestHTTPProviderClientErrorIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"unknown voice"}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	_, err := provider.Synthesize(context.Background(), testBatch())
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited) {
		t.Fatalf("client error classified as retryable: %v", err)
	}
}

func TestHTTPProviderEmptyBodyIsTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	_, err := provider.Synthesize(context.Background(), testBatch())
	if err == nil {
		t.Fatal("expected an error for an empty audio body")
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrRateLimited) {
		t.Fatalf("empty body classified as retryable: %v", err)
	}
}

func TestHTTPProviderTimeoutIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	provider := NewHTTPProvider(httpTestConfig(server.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := provider.Synthesize(ctx, testBatch())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}

func TestHTTPProviderUnreachableIsTransient(t *testing.T) {
	provider := NewHTTPProvider(httpTestConfig("http://127.0.0.1:1"))
	_, err := provider.Synthesize(context.Background(), testBatch())
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("err = %v, want ErrTransient", err)
	}
}
