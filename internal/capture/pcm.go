package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/stream"
)

const (
	frameBuffer    = 64
	deliveryBuffer = 32
)

// PCMRecorder accumulates the PCM frames of a stream while recording and
// renders them as WAV. With a TimeSlice it also delivers WAV chunks of the
// samples captured since the previous chunk.
type PCMRecorder struct {
	stream stream.Stream
	opts   Options
	logger *slog.Logger

	state     State
	samples   []int16
	pending   []int16
	cancel    func()
	loopDone  chan struct{}
	delivery  chan audio.Blob
	delivered chan struct{}
	destroyed bool

	mu sync.Mutex
}

// NewPCMRecorder creates a recorder bound to s
func NewPCMRecorder(s stream.Stream, opts Options, logger *slog.Logger) (*PCMRecorder, error) {
	if s == nil {
		return nil, fmt.Errorf("stream is required")
	}
	if opts.Channels != 0 && opts.Channels != 1 {
		return nil, fmt.Errorf("unsupported channel count: %d", opts.Channels)
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = s.SampleRate()
	}
	if opts.MimeType == "" {
		opts.MimeType = audio.MimeWAV
	}

	r := &PCMRecorder{
		stream: s,
		opts:   opts,
		logger: logger,
		state:  StateInactive,
	}

	if opts.TimeSlice > 0 && opts.OnDataAvailable != nil {
		r.delivery = make(chan audio.Blob, deliveryBuffer)
		r.delivered = make(chan struct{})
		go r.deliver(r.delivery, r.delivered)
	}

	return r, nil
}

// NewPCMFactory returns a Factory producing PCMRecorders
func NewPCMFactory(logger *slog.Logger) Factory {
	return func(s stream.Stream, opts Options) (Recorder, error) {
		return NewPCMRecorder(s, opts, logger)
	}
}

// State returns the current state
func (r *PCMRecorder) State(ctx context.Context) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return StateInactive, ErrDestroyed
	}
	return r.state, nil
}

// Start begins a new recording, discarding any previous one
func (r *PCMRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}
	if r.state == StateRecording || r.state == StatePaused {
		return fmt.Errorf("cannot start recorder in state %s", r.state)
	}

	r.samples = nil
	r.pending = nil

	frames, cancel := r.stream.Subscribe(frameBuffer)
	r.cancel = cancel
	r.loopDone = make(chan struct{})
	r.state = StateRecording

	go r.captureLoop(frames, r.loopDone)

	return nil
}

// Resume continues a paused recording
func (r *PCMRecorder) Resume(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}
	if r.state != StatePaused {
		return fmt.Errorf("cannot resume recorder in state %s", r.state)
	}
	r.state = StateRecording
	return nil
}

// Pause stops accumulating frames until Resume
func (r *PCMRecorder) Pause(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.destroyed {
		return ErrDestroyed
	}
	if r.state != StateRecording {
		return fmt.Errorf("cannot pause recorder in state %s", r.state)
	}
	r.state = StatePaused
	return nil
}

// Stop ends the recording once the capture loop has drained the subscription
func (r *PCMRecorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return ErrDestroyed
	}
	if r.state != StateRecording && r.state != StatePaused {
		r.mu.Unlock()
		return fmt.Errorf("cannot stop recorder in state %s", r.state)
	}
	cancel, done := r.cancel, r.loopDone
	r.cancel = nil
	r.mu.Unlock()

	// frames already queued on the subscription still count
	err := r.waitLoop(ctx, cancel, done)

	r.mu.Lock()
	r.state = StateStopped
	r.mu.Unlock()
	return err
}

func (r *PCMRecorder) waitLoop(ctx context.Context, cancel func(), done chan struct{}) error {
	if cancel != nil {
		cancel()
	}
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Blob returns everything recorded so far as a WAV blob
func (r *PCMRecorder) Blob(ctx context.Context) (audio.Blob, error) {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return audio.Blob{}, ErrDestroyed
	}
	samples := make([]int16, len(r.samples))
	copy(samples, r.samples)
	r.mu.Unlock()

	data, err := audio.EncodeWAV(samples, r.opts.SampleRate)
	if err != nil {
		return audio.Blob{}, fmt.Errorf("failed to encode recording: %w", err)
	}
	return audio.NewBlob(data, r.opts.MimeType), nil
}

// Destroy stops the recording if needed and drops undelivered chunks.
// It does not wait for a chunk handler that is already running.
func (r *PCMRecorder) Destroy(ctx context.Context) error {
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	r.destroyed = true
	r.state = StateInactive
	cancel, done := r.cancel, r.loopDone
	r.cancel = nil
	r.samples = nil
	r.pending = nil
	r.mu.Unlock()

	// the loop must be gone before the delivery channel closes
	err := r.waitLoop(ctx, cancel, done)
	if r.delivery != nil {
		if err != nil {
			go func() {
				<-done
				close(r.delivery)
			}()
		} else {
			close(r.delivery)
		}
	}
	return err
}

func (r *PCMRecorder) captureLoop(frames <-chan []int16, done chan struct{}) {
	defer close(done)

	var tick <-chan time.Time
	if r.delivery != nil {
		ticker := time.NewTicker(r.opts.TimeSlice)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			r.appendFrame(frame)
		case <-tick:
			r.emitChunk()
		}
	}
}

func (r *PCMRecorder) appendFrame(frame []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != StateRecording {
		return
	}
	r.samples = append(r.samples, frame...)
	if r.delivery != nil {
		r.pending = append(r.pending, frame...)
	}
}

func (r *PCMRecorder) emitChunk() {
	r.mu.Lock()
	if len(r.pending) == 0 || r.state != StateRecording {
		r.mu.Unlock()
		return
	}
	chunk := r.pending
	r.pending = nil
	r.mu.Unlock()

	data, err := audio.EncodeWAV(chunk, r.opts.SampleRate)
	if err != nil {
		r.logger.Error("Failed to encode chunk", slog.String("error", err.Error()))
		return
	}

	select {
	case r.delivery <- audio.NewBlob(data, r.opts.MimeType):
	default:
		r.logger.Warn("Chunk delivery queue full, dropping chunk",
			slog.Int("samples", len(chunk)),
		)
	}
}

func (r *PCMRecorder) deliver(queue <-chan audio.Blob, delivered chan struct{}) {
	defer close(delivered)

	for chunk := range queue {
		r.mu.Lock()
		destroyed := r.destroyed
		r.mu.Unlock()
		if destroyed {
			continue
		}
		r.opts.OnDataAvailable(chunk)
	}
}
