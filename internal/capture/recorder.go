package capture

import (
	"context"
	"errors"
	"time"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/stream"
)

// State is the recorder's internal state
type State string

const (
	StateInactive  State = "inactive"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// ErrDestroyed is returned by operations on a destroyed recorder
var ErrDestroyed = errors.New("recorder destroyed")

// Options configures a recorder
type Options struct {
	MimeType   string
	Channels   int
	SampleRate int
	// TimeSlice is the chunk interval; zero disables chunk delivery
	TimeSlice time.Duration
	// OnDataAvailable receives each chunk when TimeSlice is set
	OnDataAvailable func(chunk audio.Blob)
}

// DefaultOptions returns the mono 44.1kHz WAV configuration
func DefaultOptions() Options {
	return Options{
		MimeType:   audio.MimeWAV,
		Channels:   1,
		SampleRate: 44100,
	}
}

// Recorder records one stream. Every operation may block and must not be
// issued concurrently with another lifecycle operation.
type Recorder interface {
	State(ctx context.Context) (State, error)
	Start(ctx context.Context) error
	Resume(ctx context.Context) error
	Pause(ctx context.Context) error
	Stop(ctx context.Context) error
	Blob(ctx context.Context) (audio.Blob, error)
	Destroy(ctx context.Context) error
}

// Factory creates a recorder bound to a stream
type Factory func(s stream.Stream, opts Options) (Recorder, error)
