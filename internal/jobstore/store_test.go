package jobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hakivo/briefcast/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "jobs.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, "job-1", "A: Hello.\nB: Hi."); err != nil {
		t.Fatalf("create: %v", err)
	}
	job, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusScriptReady {
		t.Fatalf("expected script_ready, got %s", job.Status)
	}
	if job.AudioURL != "" {
		t.Fatalf("expected empty audio url, got %q", job.AudioURL)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNextScriptReadyReturnsOldest(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = func() time.Time { return base }
	if err := s.Create(ctx, "older", "A: first"); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.clock = func() time.Time { return base.Add(time.Minute) }
	if err := s.Create(ctx, "newer", "A: second"); err != nil {
		t.Fatalf("create: %v", err)
	}

	job, ok, err := s.NextScriptReady(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !ok || job.ID != "older" {
		t.Fatalf("expected oldest job, got %+v ok=%v", job, ok)
	}
}

func TestNextScriptReadyEmpty(t *testing.T) {
	s := openStore(t)
	if _, ok, err := s.NextScriptReady(context.Background()); err != nil || ok {
		t.Fatalf("expected no job, got ok=%v err=%v", ok, err)
	}
}

func TestClaimIsExclusive(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "job-1", "A: hi"); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := s.Claim(ctx, "job-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	again, err := s.Claim(ctx, "job-1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if again {
		t.Fatal("expected second claim to fail")
	}
}

func TestClaimRaceExactlyOneWinner(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "job-1", "A: hi"); err != nil {
		t.Fatalf("create: %v", err)
	}

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Claim(ctx, "job-1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "job-1", "A: hi"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Finalizing an unclaimed job is illegal.
	if err := s.MarkCompleted(ctx, "job-1", "https://cdn/x.wav"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}

	if ok, _ := s.Claim(ctx, "job-1"); !ok {
		t.Fatal("claim failed")
	}
	if err := s.MarkCompleted(ctx, "job-1", "https://cdn/x.wav"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	job, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusCompleted || job.AudioURL != "https://cdn/x.wav" {
		t.Fatalf("unexpected final state: %+v", job)
	}

	// Terminal states are never exited automatically.
	if ok, err := s.Claim(ctx, "job-1"); err != nil || ok {
		t.Fatalf("claim on terminal job: ok=%v err=%v", ok, err)
	}
	if err := s.MarkFailed(ctx, "job-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}

func TestMarkFailedKeepsAudioURLNull(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "job-1", "A: hi"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := s.Claim(ctx, "job-1"); !ok {
		t.Fatal("claim failed")
	}
	if err := s.MarkFailed(ctx, "job-1"); err != nil {
		t.Fatalf("fail: %v", err)
	}
	job, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusAudioFailed {
		t.Fatalf("expected audio_failed, got %s", job.Status)
	}
	if job.AudioURL != "" {
		t.Fatalf("failed job must not carry an audio url, got %q", job.AudioURL)
	}
}

func TestRequeueFromFailed(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, "job-1", "A: hi"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, _ := s.Claim(ctx, "job-1"); !ok {
		t.Fatal("claim failed")
	}
	if err := s.MarkFailed(ctx, "job-1"); err != nil {
		t.Fatalf("fail: %v", err)
	}

	if err := s.Requeue(ctx, "job-1"); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	job, err := s.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusScriptReady {
		t.Fatalf("expected script_ready after requeue, got %s", job.Status)
	}

	// Requeue only applies to failed jobs.
	if err := s.Requeue(ctx, "job-1"); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
}
