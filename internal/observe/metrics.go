// Package observe holds the OpenTelemetry metric instruments for the
// synthesis pipeline. Instruments are created once against the global meter
// provider; tests pass a private provider to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hakivo/briefcast"

// Metrics bundles the pipeline's metric instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// JobsProcessed counts finished jobs. Recorded with
	// attribute.String("outcome", "completed"|"failed").
	JobsProcessed metric.Int64Counter

	// BatchesSynthesized counts successfully synthesized batches.
	BatchesSynthesized metric.Int64Counter

	// SynthesisRetries counts retried synthesis calls. Recorded with
	// attribute.String("reason", "rate_limited"|"transient").
	SynthesisRetries metric.Int64Counter

	// JobDuration tracks end-to-end processing time per job in seconds.
	JobDuration metric.Float64Histogram

	// AssetBytes tracks the size of published audio assets.
	AssetBytes metric.Int64Histogram
}

// NewMetrics creates instruments on the supplied meter provider.
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	jobs, err := meter.Int64Counter("briefcast.jobs.processed",
		metric.WithDescription("Finished audio jobs by outcome"))
	if err != nil {
		return nil, err
	}
	batches, err := meter.Int64Counter("briefcast.synthesis.batches",
		metric.WithDescription("Successfully synthesized batches"))
	if err != nil {
		return nil, err
	}
	retries, err := meter.Int64Counter("briefcast.synthesis.retries",
		metric.WithDescription("Retried synthesis calls by reason"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("briefcast.jobs.duration_seconds",
		metric.WithDescription("End-to-end processing time per job"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	assetBytes, err := meter.Int64Histogram("briefcast.assets.bytes",
		metric.WithDescription("Size of published audio assets"),
		metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		JobsProcessed:      jobs,
		BatchesSynthesized: batches,
		SynthesisRetries:   retries,
		JobDuration:        duration,
		AssetBytes:         assetBytes,
	}, nil
}

// Default creates instruments on the global meter provider.
func Default() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// RecordJob records one finished job with its outcome and duration.
func (m *Metrics) RecordJob(ctx context.Context, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.JobsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.JobDuration.Record(ctx, seconds)
}

// RecordRetry records one retried synthesis call.
func (m *Metrics) RecordRetry(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.SynthesisRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordBatch records one successfully synthesized batch.
func (m *Metrics) RecordBatch(ctx context.Context) {
	if m == nil {
		return
	}
	m.BatchesSynthesized.Add(ctx, 1)
}

// RecordAsset records the size of a published asset.
func (m *Metrics) RecordAsset(ctx context.Context, size int64) {
	if m == nil {
		return
	}
	m.AssetBytes.Record(ctx, size)
}
