// Package assemble joins the ordered per-batch audio chunks of one job into
// a single playable WAV asset.
//
// Byte-for-byte concatenation is only valid because the synthesis provider is
// asked for raw uncompressed PCM. Encoded intermediates (mp3 and friends)
// must never reach this package without being decoded first.
package assemble

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hakivo/briefcast/internal/synth"
)

// MIMEWav is the content type of assembled assets.
const MIMEWav = "audio/wav"

var (
	// ErrNoChunks is returned when there is nothing to assemble.
	ErrNoChunks = errors.New("no audio chunks to assemble")
	// ErrSequenceGap is returned when chunk indices are not 0..n-1 in order.
	ErrSequenceGap = errors.New("audio chunk sequence has a gap")
	// ErrFormatMismatch is returned when chunks disagree on sample format.
	ErrFormatMismatch = errors.New("audio chunk formats disagree")
	// ErrUnalignedPCM is returned when a chunk payload is not sample-aligned.
	ErrUnalignedPCM = errors.New("pcm payload not sample aligned")
	// ErrUnsupportedBitDepth is returned for any sample width other than
	// 16-bit. The encoder decodes the payload as int16 pairs; letting a
	// uniform 24-bit sequence through would publish corrupted audio.
	ErrUnsupportedBitDepth = errors.New("unsupported pcm bit depth")
)

// Asset is the final storage-ready artifact for a job.
type Asset struct {
	Data   []byte
	MIME   string
	Format synth.SampleFormat
}

// WAV validates and concatenates the chunks in batch order, then wraps the
// raw samples in a WAV container.
func WAV(chunks []synth.Chunk) (Asset, error) {
	format, pcm, err := concat(chunks)
	if err != nil {
		return Asset{}, err
	}
	data, err := encodeWAV(pcm, format)
	if err != nil {
		return Asset{}, err
	}
	return Asset{Data: data, MIME: MIMEWav, Format: format}, nil
}

func concat(chunks []synth.Chunk) (synth.SampleFormat, []byte, error) {
	if len(chunks) == 0 {
		return synth.SampleFormat{}, nil, ErrNoChunks
	}

	format := chunks[0].Format
	if format.BitDepth != 16 {
		return synth.SampleFormat{}, nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, format.BitDepth)
	}
	bytesPerSample := format.BitDepth / 8
	total := 0
	for i, chunk := range chunks {
		if chunk.Index != i {
			return synth.SampleFormat{}, nil, fmt.Errorf("%w: expected index %d, got %d", ErrSequenceGap, i, chunk.Index)
		}
		if chunk.Format != format {
			return synth.SampleFormat{}, nil, fmt.Errorf("%w: chunk %d is %+v, expected %+v", ErrFormatMismatch, i, chunk.Format, format)
		}
		if len(chunk.PCM)%(bytesPerSample*format.Channels) != 0 {
			return synth.SampleFormat{}, nil, fmt.Errorf("%w: chunk %d has %d bytes", ErrUnalignedPCM, i, len(chunk.PCM))
		}
		total += len(chunk.PCM)
	}

	pcm := make([]byte, 0, total)
	for _, chunk := range chunks {
		pcm = append(pcm, chunk.PCM...)
	}
	return format, pcm, nil
}

// encodeWAV wraps raw 16-bit PCM in a WAV container. The wav encoder needs a
// WriteSeeker to patch up the RIFF header, so it goes through a temp file.
func encodeWAV(pcm []byte, format synth.SampleFormat) ([]byte, error) {
	file, err := os.CreateTemp("", "briefcast_asset_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, format.SampleRate, format.BitDepth, format.Channels, 1)
	if err := enc.Write(buffer); err != nil {
		return nil, fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("close wav encoder: %w", err)
	}

	data, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, fmt.Errorf("read assembled wav: %w", err)
	}
	return data, nil
}
