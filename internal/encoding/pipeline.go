package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/781574155/use-whisper/internal/audio"
)

// Pipeline owns the incremental encoder and the streaming chunk buffer of one
// recording session
type Pipeline struct {
	newEncoder    EncoderFactory
	newTranscoder TranscoderFactory
	logger        *slog.Logger

	encoder    Encoder
	sampleRate int
	session    uuid.UUID
	chunks     *audio.ChunkBuffer

	mu sync.Mutex
}

// NewPipeline creates a pipeline. newTranscoder may be nil when silence
// removal is never used.
func NewPipeline(newEncoder EncoderFactory, newTranscoder TranscoderFactory, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		newEncoder:    newEncoder,
		newTranscoder: newTranscoder,
		logger:        logger,
		chunks:        audio.NewChunkBuffer(),
	}
}

// EnsureEncoder creates the encoder of session for audio at sampleRate
// unless one exists. Zero selects SampleRate. Batch callers pass uuid.Nil.
func (p *Pipeline) EnsureEncoder(session uuid.UUID, sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder != nil {
		if p.session != session {
			return fmt.Errorf("encoder belongs to session %s", p.session)
		}
		return nil
	}
	if sampleRate <= 0 {
		sampleRate = SampleRate
	}
	enc, err := p.newEncoder(Channels, sampleRate, Bitrate)
	if err != nil {
		return fmt.Errorf("failed to create encoder: %w", err)
	}
	p.encoder = enc
	p.sampleRate = sampleRate
	p.session = session
	return nil
}

func (p *Pipeline) encodeLocked(data []byte) ([]byte, error) {
	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wav: %w", err)
	}
	if p.encoder == nil {
		return nil, ErrNoEncoder
	}
	if rate != p.sampleRate {
		return nil, fmt.Errorf("sample rate %d does not match encoder rate %d", rate, p.sampleRate)
	}
	return p.encoder.EncodeBuffer(samples)
}

// HasEncoder reports whether an encoder exists
func (p *Pipeline) HasEncoder() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder != nil
}

// Encode compresses a full WAV recording in one encoder call
func (p *Pipeline) Encode(blob audio.Blob) (audio.Blob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := p.encodeLocked(blob.Data)
	if err != nil {
		return audio.Blob{}, fmt.Errorf("failed to encode recording: %w", err)
	}
	return audio.NewBlob(data, audio.MimeMPEG), nil
}

// RemoveSilence runs the recording through the silence filter. When the
// filtered output is at most MinViableOutputSize bytes it returns the input
// unchanged with abandoned set. The sandbox is terminated on every path.
func (p *Pipeline) RemoveSilence(ctx context.Context, blob audio.Blob) (out audio.Blob, abandoned bool, err error) {
	if p.newTranscoder == nil {
		return audio.Blob{}, false, errors.New("no transcoder configured")
	}

	sandbox, err := p.newTranscoder()
	if err != nil {
		return audio.Blob{}, false, fmt.Errorf("failed to create transcoder: %w", err)
	}
	defer func() {
		if terr := sandbox.Terminate(); terr != nil {
			p.logger.Warn("Failed to terminate transcoder", slog.String("error", terr.Error()))
		}
	}()

	if err := sandbox.Load(ctx); err != nil {
		return audio.Blob{}, false, fmt.Errorf("failed to load transcoder: %w", err)
	}
	if err := sandbox.WriteFile(inputFile, blob.Data); err != nil {
		return audio.Blob{}, false, fmt.Errorf("failed to write %s: %w", inputFile, err)
	}
	if err := sandbox.Exec(ctx, SilenceRemovalArgs()...); err != nil {
		return audio.Blob{}, false, fmt.Errorf("failed to remove silence: %w", err)
	}
	data, err := sandbox.ReadFile(outputFile)
	if err != nil {
		return audio.Blob{}, false, fmt.Errorf("failed to read %s: %w", outputFile, err)
	}

	if len(data) <= MinViableOutputSize {
		p.logger.Debug("Silence removal left no usable audio",
			slog.Int("input_bytes", blob.Size()),
			slog.Int("output_bytes", len(data)),
		)
		return blob, true, nil
	}

	p.logger.Debug("Silence removed",
		slog.Int("input_bytes", blob.Size()),
		slog.Int("output_bytes", len(data)),
	)
	return audio.NewBlob(data, audio.MimeMPEG), false, nil
}

// EncodeChunk encodes one streaming WAV chunk of session, appends it to the
// chunk buffer and returns the concatenation of every chunk encoded so far.
// Chunks of any session but the encoder's fail with ErrStaleChunk.
func (p *Pipeline) EncodeChunk(session uuid.UUID, chunk audio.Blob) (audio.Blob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.encoder == nil || p.session != session {
		return audio.Blob{}, ErrStaleChunk
	}
	data, err := p.encodeLocked(chunk.Data)
	if err != nil {
		return audio.Blob{}, fmt.Errorf("failed to encode chunk: %w", err)
	}
	p.chunks.Append(data)

	return audio.NewBlob(p.chunks.Concat(), audio.MimeMPEG), nil
}

// Chunks returns the number of buffered chunks
func (p *Pipeline) Chunks() int {
	return p.chunks.Len()
}

// ClearChunks empties the chunk buffer
func (p *Pipeline) ClearChunks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chunks.Reset()
}

// Release flushes and discards the encoder. It is a no-op without one.
func (p *Pipeline) Release() error {
	p.mu.Lock()
	enc := p.encoder
	p.encoder = nil
	p.sampleRate = 0
	p.session = uuid.Nil
	p.mu.Unlock()

	if enc == nil {
		return nil
	}
	if _, err := enc.Flush(); err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}
	return nil
}
