package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/stream"
)

// Session owns at most one recorder and mediates its transitions
type Session struct {
	newRecorder Factory
	logger      *slog.Logger

	recorder Recorder
	streamID string

	mu sync.Mutex
}

// NewSession creates an empty capture session
func NewSession(newRecorder Factory, logger *slog.Logger) *Session {
	return &Session{
		newRecorder: newRecorder,
		logger:      logger,
	}
}

// Ensure creates the recorder for s unless one already exists.
// It reports whether a new recorder was created.
func (s *Session) Ensure(st stream.Stream, opts Options) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recorder != nil {
		return false, nil
	}

	rec, err := s.newRecorder(st, opts)
	if err != nil {
		return false, fmt.Errorf("failed to create recorder: %w", err)
	}
	s.recorder = rec
	s.streamID = st.ID()

	s.logger.Debug("Recorder created",
		slog.String("stream_id", s.streamID),
		slog.String("mime_type", opts.MimeType),
		slog.Int("sample_rate", opts.SampleRate),
		slog.Duration("time_slice", opts.TimeSlice),
		slog.Bool("chunk_callback", opts.OnDataAvailable != nil),
	)
	return true, nil
}

// Active reports whether a recorder exists
func (s *Session) Active() bool {
	return s.current() != nil
}

func (s *Session) current() Recorder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder
}

// State queries the recorder. Without a recorder the state is inactive.
func (s *Session) State(ctx context.Context) (State, error) {
	rec := s.current()
	if rec == nil {
		return StateInactive, nil
	}
	return rec.State(ctx)
}

// Start starts an inactive or stopped recorder and resumes a paused one
func (s *Session) Start(ctx context.Context) error {
	rec := s.current()
	if rec == nil {
		return fmt.Errorf("no recorder to start")
	}

	state, err := rec.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to query recorder state: %w", err)
	}

	switch state {
	case StateInactive, StateStopped:
		if err := rec.Start(ctx); err != nil {
			return fmt.Errorf("failed to start recorder: %w", err)
		}
	case StatePaused:
		if err := rec.Resume(ctx); err != nil {
			return fmt.Errorf("failed to resume recorder: %w", err)
		}
	}
	return nil
}

// Pause pauses a recording recorder; any other state is left alone.
// It reports whether a pause was issued.
func (s *Session) Pause(ctx context.Context) (bool, error) {
	rec := s.current()
	if rec == nil {
		return false, nil
	}

	state, err := rec.State(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to query recorder state: %w", err)
	}
	if state != StateRecording {
		return false, nil
	}
	if err := rec.Pause(ctx); err != nil {
		return false, fmt.Errorf("failed to pause recorder: %w", err)
	}
	return true, nil
}

// Stop stops a recording or paused recorder and returns the state queried
// afterwards, which callers must check before fetching the blob.
func (s *Session) Stop(ctx context.Context) (State, error) {
	rec := s.current()
	if rec == nil {
		return StateInactive, nil
	}

	state, err := rec.State(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to query recorder state: %w", err)
	}
	if state == StateRecording || state == StatePaused {
		if err := rec.Stop(ctx); err != nil {
			return state, fmt.Errorf("failed to stop recorder: %w", err)
		}
	}

	state, err = rec.State(ctx)
	if err != nil {
		return state, fmt.Errorf("failed to query recorder state: %w", err)
	}
	return state, nil
}

// Blob returns the recorded audio
func (s *Session) Blob(ctx context.Context) (audio.Blob, error) {
	rec := s.current()
	if rec == nil {
		return audio.Blob{}, fmt.Errorf("no recorder")
	}
	return rec.Blob(ctx)
}

// Destroy releases the recorder and clears the reference whatever its state.
// It is a no-op without a recorder.
func (s *Session) Destroy(ctx context.Context) error {
	s.mu.Lock()
	rec := s.recorder
	streamID := s.streamID
	s.recorder = nil
	s.streamID = ""
	s.mu.Unlock()

	if rec == nil {
		return nil
	}

	if err := rec.Destroy(ctx); err != nil {
		return fmt.Errorf("failed to destroy recorder: %w", err)
	}
	s.logger.Debug("Recorder destroyed", slog.String("stream_id", streamID))
	return nil
}
