package device

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/stream"
)

const stopGrace = 2 * time.Second

// Stream is the PCM output of one recording process
type Stream struct {
	id         string
	sampleRate int
	cmd        *exec.Cmd
	logger     *slog.Logger
	track      *Track

	subscribers map[int]chan []int16
	nextSub     int
	ended       bool
	done        chan struct{}

	mu sync.Mutex
}

func newStream(id string, sampleRate int, cmd *exec.Cmd, logger *slog.Logger) *Stream {
	s := &Stream{
		id:          id,
		sampleRate:  sampleRate,
		cmd:         cmd,
		logger:      logger,
		subscribers: make(map[int]chan []int16),
		done:        make(chan struct{}),
	}
	s.track = &Track{stream: s}
	return s
}

// ID implements stream.Stream
func (s *Stream) ID() string { return s.id }

// SampleRate implements stream.Stream
func (s *Stream) SampleRate() int { return s.sampleRate }

// Tracks implements stream.Stream
func (s *Stream) Tracks() []stream.Track { return []stream.Track{s.track} }

// Subscribe implements stream.Stream. Frames are dropped for subscribers
// whose buffer is full. The channel is closed on cancel or when the process ends.
func (s *Stream) Subscribe(buffer int) (<-chan []int16, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan []int16, buffer)
	if s.ended {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			close(sub)
			delete(s.subscribers, id)
		}
	}
}

func (s *Stream) read(r io.Reader, frameSamples int) {
	defer close(s.done)
	defer s.end()

	buf := make([]byte, frameSamples*2)
	for {
		n, err := readFrame(r, buf)
		if n >= 2 {
			s.publish(audio.BytesToSamples(buf[:n-n%2]))
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Debug("Capture stream read ended",
					slog.String("stream_id", s.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

func (s *Stream) publish(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

func (s *Stream) end() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ended = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Close ends the recording process and waits for it to exit
func (s *Stream) Close() error {
	var result *multierror.Error

	if s.cmd.Process != nil {
		if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
			result = multierror.Append(result, err)
		}
	}

	select {
	case <-s.done:
	case <-time.After(stopGrace):
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			result = multierror.Append(result, err)
		}
		<-s.done
	}

	// interrupted recorders exit non-zero
	if err := s.cmd.Wait(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			result = multierror.Append(result, err)
		}
	}

	return result.ErrorOrNil()
}

// Track stops the recording process
type Track struct {
	stream *Stream
	once   sync.Once
}

// ID implements stream.Track
func (t *Track) ID() string { return t.stream.id + "-audio" }

// Stop implements stream.Track
func (t *Track) Stop() {
	t.once.Do(func() {
		if err := t.stream.Close(); err != nil {
			t.stream.logger.Warn("Failed to stop capture process",
				slog.String("stream_id", t.stream.id),
				slog.String("error", err.Error()),
			)
			return
		}
		t.stream.logger.Info("Capture stream stopped", slog.String("stream_id", t.stream.id))
	})
}
