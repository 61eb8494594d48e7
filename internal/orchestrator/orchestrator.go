// Package orchestrator drives one brief job at a time through the synthesis
// pipeline: claim, parse, batch, synthesize, assemble, publish, finalize.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hakivo/briefcast/internal/assemble"
	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/dialogue"
	"github.com/hakivo/briefcast/internal/jobstore"
	"github.com/hakivo/briefcast/internal/observe"
	"github.com/hakivo/briefcast/internal/protocol"
	"github.com/hakivo/briefcast/internal/storage"
	"github.com/hakivo/briefcast/internal/synth"
)

// Publisher posts completion events to the bus. *nats.Conn satisfies it.
// A nil Publisher disables event publication.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Outcome reports how one pipeline pass ended.
type Outcome int

const (
	// OutcomeNone means no job was claimed: the queue was empty or another
	// invocation won the claim race.
	OutcomeNone Outcome = iota
	// OutcomeCompleted means a job was driven to completed.
	OutcomeCompleted
	// OutcomeFailed means a job was finalized as audio_failed.
	OutcomeFailed
)

// Orchestrator processes at most one eligible job per invocation. Claiming
// the job via the store's conditional update is the only mutual exclusion
// between overlapping invocations.
type Orchestrator struct {
	store     *jobstore.Store
	synth     *synth.Client
	objects   storage.ObjectStore
	publisher Publisher
	synthCfg  config.SynthesisConfig
	keyPrefix string
	metrics   *observe.Metrics
	logger    *slog.Logger
	clock     func() time.Time
}

// New wires an orchestrator. publisher and metrics may be nil.
func New(
	store *jobstore.Store,
	client *synth.Client,
	objects storage.ObjectStore,
	publisher Publisher,
	synthCfg config.SynthesisConfig,
	keyPrefix string,
	metrics *observe.Metrics,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:     store,
		synth:     client,
		objects:   objects,
		publisher: publisher,
		synthCfg:  synthCfg,
		keyPrefix: keyPrefix,
		metrics:   metrics,
		logger:    log.With(slog.String("component", "orchestrator")),
		clock:     time.Now,
	}
}

// ProcessNext runs one pipeline pass and reports how it ended. Pipeline
// failures finalize the job as audio_failed and are not surfaced as errors;
// only job-store failures are. Finding no work, or losing the claim race, is
// a silent no-op.
func (o *Orchestrator) ProcessNext(ctx context.Context) (Outcome, error) {
	job, ok, err := o.store.NextScriptReady(ctx)
	if err != nil {
		return OutcomeNone, fmt.Errorf("query next job: %w", err)
	}
	if !ok {
		return OutcomeNone, nil
	}

	claimed, err := o.store.Claim(ctx, job.ID)
	if err != nil {
		return OutcomeNone, fmt.Errorf("claim job %s: %w", job.ID, err)
	}
	if !claimed {
		// Another invocation owns the job now. This invocation does not
		// look for a second job.
		o.logger.Debug("lost claim race", slog.String("job", job.ID))
		return OutcomeNone, nil
	}

	started := o.clock()
	url, size, pipelineErr := o.render(ctx, job)
	elapsed := o.clock().Sub(started).Seconds()

	if pipelineErr != nil {
		o.logger.Error("job failed",
			slog.String("job", job.ID),
			slog.String("error", pipelineErr.Error()))
		if err := o.store.MarkFailed(ctx, job.ID); err != nil {
			return OutcomeFailed, fmt.Errorf("mark job %s failed: %w", job.ID, err)
		}
		o.metrics.RecordJob(ctx, "failed", elapsed)
		return OutcomeFailed, nil
	}

	if err := o.store.MarkCompleted(ctx, job.ID, url); err != nil {
		return OutcomeFailed, fmt.Errorf("mark job %s completed: %w", job.ID, err)
	}
	o.metrics.RecordJob(ctx, "completed", elapsed)
	o.metrics.RecordAsset(ctx, int64(size))
	o.publishCompletion(job.ID, url, size)

	o.logger.Info("job completed",
		slog.String("job", job.ID),
		slog.String("url", url),
		slog.Int("bytes", size))
	return OutcomeCompleted, nil
}

// render runs parse -> chunk -> synthesize -> assemble -> upload for one
// claimed job and returns the published URL and asset size.
func (o *Orchestrator) render(ctx context.Context, job jobstore.Job) (string, int, error) {
	turns, err := dialogue.Parse(job.Script)
	if err != nil {
		return "", 0, fmt.Errorf("parse script: %w", err)
	}

	voices := dialogue.SelectVoicePair(job.ID, o.synthCfg.Voices)
	batches := dialogue.BuildBatches(turns, o.synthCfg.CharBudget, voices)
	o.logger.Info("processing job",
		slog.String("job", job.ID),
		slog.Int("turns", len(turns)),
		slog.Int("batches", len(batches)))

	chunks, err := o.synth.SynthesizeAll(ctx, batches)
	if err != nil {
		return "", 0, fmt.Errorf("synthesize: %w", err)
	}

	asset, err := assemble.WAV(chunks)
	if err != nil {
		return "", 0, fmt.Errorf("assemble: %w", err)
	}

	key := storage.AssetKey(o.keyPrefix, job.ID, o.clock(), "wav")
	url, err := o.objects.Put(ctx, key, asset.Data, asset.MIME)
	if err != nil {
		return "", 0, fmt.Errorf("upload asset: %w", err)
	}
	return url, len(asset.Data), nil
}

func (o *Orchestrator) publishCompletion(jobID, url string, size int) {
	if o.publisher == nil {
		return
	}
	event := protocol.AudioPublishedEvent{
		JobID:     jobID,
		AudioURL:  url,
		SizeBytes: size,
		Timestamp: o.clock().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		o.logger.Warn("marshal completion event", slog.String("error", err.Error()))
		return
	}
	if err := o.publisher.Publish(protocol.SubjectAudioPublished, data); err != nil {
		o.logger.Warn("publish completion event", slog.String("error", err.Error()))
	}
}
