// Package jobstore persists brief jobs in SQLite and enforces the job state
// machine. The claim transition doubles as the pipeline's only concurrency
// control: it is a single conditional UPDATE, so exactly one poller can move
// a job out of script_ready.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hakivo/briefcast/internal/config"
	_ "modernc.org/sqlite"
)

// Status is the lifecycle state of a brief job.
type Status string

const (
	// StatusScriptReady is set by the upstream script writer; the job is
	// waiting for synthesis.
	StatusScriptReady Status = "script_ready"
	// StatusAudioProcessing marks a claimed job owned by one invocation.
	StatusAudioProcessing Status = "audio_processing"
	// StatusCompleted is terminal; audio_url is set.
	StatusCompleted Status = "completed"
	// StatusAudioFailed is terminal; audio_url stays empty. Recovery requires
	// an explicit operator Requeue, never an automatic transition.
	StatusAudioFailed Status = "audio_failed"
)

// Job is the persisted unit of work.
type Job struct {
	ID        string
	Script    string
	Status    Status
	AudioURL  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrNotFound is returned when no job exists for the given id.
	ErrNotFound = errors.New("job not found")
	// ErrIllegalTransition is returned when a status update finds the job in
	// a state the transition does not start from.
	ErrIllegalTransition = errors.New("illegal job status transition")
)

// Store wraps the SQLite-backed job ledger.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the job store according to config.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Info("job store ready", slog.String("path", cfg.Path))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS brief_jobs (
    id TEXT PRIMARY KEY,
    script TEXT NOT NULL,
    status TEXT NOT NULL,
    audio_url TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_brief_jobs_status_created ON brief_jobs(status, created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new job in script_ready. Called at the script-writer
// boundary, never by the pipeline itself.
func (s *Store) Create(ctx context.Context, id, script string) error {
	now := s.clock().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO brief_jobs(id, script, status, audio_url, created_at, updated_at)
		 VALUES(?, ?, ?, NULL, ?, ?)`,
		id, script, StatusScriptReady, now, now)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", id, err)
	}
	return nil
}

// Get returns the job for id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, script, status, audio_url, created_at, updated_at
		 FROM brief_jobs WHERE id = ?`, id)
	return scanJob(row)
}

// NextScriptReady returns the oldest job waiting for synthesis. The second
// return value is false when no job is eligible.
func (s *Store) NextScriptReady(ctx context.Context) (Job, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, script, status, audio_url, created_at, updated_at
		 FROM brief_jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`,
		StatusScriptReady)
	job, err := scanJob(row)
	if errors.Is(err, ErrNotFound) {
		return Job{}, false, nil
	}
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// Claim attempts the script_ready -> audio_processing transition. It is a
// compare-and-swap on status: the UPDATE only matches while the row is still
// script_ready, so out of any number of racing invocations exactly one sees
// a true result. A false result is not an error.
func (s *Store) Claim(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE brief_jobs SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		StatusAudioProcessing, s.clock().UnixMilli(), id, StatusScriptReady)
	if err != nil {
		return false, fmt.Errorf("claim job %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim job %s: rows affected: %w", id, err)
	}
	return affected == 1, nil
}

// MarkCompleted finalizes a claimed job with its published URL.
func (s *Store) MarkCompleted(ctx context.Context, id, audioURL string) error {
	return s.transition(ctx, id, StatusAudioProcessing, StatusCompleted, &audioURL)
}

// MarkFailed finalizes a claimed job without audio. The audio_url stays NULL:
// a failed job must never expose a partial asset.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusAudioProcessing, StatusAudioFailed, nil)
}

// Requeue moves a failed job back to script_ready. This is the explicit
// operator reset the state machine requires for recovery; the pipeline never
// calls it.
func (s *Store) Requeue(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusAudioFailed, StatusScriptReady, nil)
}

func (s *Store) transition(ctx context.Context, id string, from, to Status, audioURL *string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE brief_jobs SET status = ?, audio_url = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to, audioURL, s.clock().UnixMilli(), id, from)
	if err != nil {
		return fmt.Errorf("transition job %s to %s: %w", id, to, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("transition job %s to %s: rows affected: %w", id, to, err)
	}
	if affected == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			s.log.Warn("job status lookup after rejected transition failed",
				slog.String("job", id), slog.String("error", getErr.Error()))
			return fmt.Errorf("%w: job %s not in %s", ErrIllegalTransition, id, from)
		}
		return fmt.Errorf("%w: job %s is %s, expected %s", ErrIllegalTransition, id, current.Status, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job       Job
		audioURL  sql.NullString
		createdAt int64
		updatedAt int64
	)
	err := row.Scan(&job.ID, &job.Script, &job.Status, &audioURL, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.AudioURL = audioURL.String
	job.CreatedAt = time.UnixMilli(createdAt)
	job.UpdatedAt = time.UnixMilli(updatedAt)
	return job, nil
}
