package synth

import (
	"context"

	"github.com/hakivo/briefcast/internal/dialogue"
)

const mockBytesPerChar = 4

type mockProvider struct {
	format SampleFormat
}

// NewMockProvider returns a Provider that emits silence sized proportionally
// to the batch text. Used for mode "mock" deployments and tests.
func NewMockProvider(sampleRate, channels, bitDepth int) Provider {
	return &mockProvider{format: SampleFormat{SampleRate: sampleRate, Channels: channels, BitDepth: bitDepth}}
}

func (m *mockProvider) Synthesize(ctx context.Context, batch dialogue.Batch) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}
	return Chunk{
		Index:  batch.Index,
		Format: m.format,
		PCM:    make([]byte, batch.CharLen()*mockBytesPerChar),
	}, nil
}
