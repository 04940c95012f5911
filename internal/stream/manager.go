package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/781574155/use-whisper/internal/timeout"
)

// ManagerConfig contains configuration for the stream manager
type ManagerConfig struct {
	Constraints     Constraints
	DetectorOptions DetectorOptions
	// NonStop re-arms the stop timeout whenever the speaker falls silent
	NonStop bool
}

// DefaultManagerConfig returns the mono 44.1kHz / 100ms detector setup
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Constraints: Constraints{
			Audio:      true,
			SampleRate: 44100,
			Channels:   1,
		},
		DetectorOptions: DetectorOptions{
			Interval: DefaultDetectorInterval,
			Play:     false,
		},
	}
}

// Manager owns exactly one live stream and one detector at a time
type Manager struct {
	device      Device
	newDetector DetectorFactory
	timeouts    *timeout.Controller
	config      ManagerConfig
	logger      *slog.Logger

	stream      Stream
	detector    Detector
	unsubscribe []func()

	// generation invalidates detector handlers of released streams
	generation atomic.Uint64
	speaking   atomic.Bool

	onSpeakingChange func(speaking bool)
	hookMu           sync.RWMutex

	mu sync.Mutex
}

// NewManager creates a stream manager. newDetector may be nil, in which case
// no speaking events are produced.
func NewManager(device Device, newDetector DetectorFactory, timeouts *timeout.Controller,
	config ManagerConfig, logger *slog.Logger) *Manager {
	return &Manager{
		device:      device,
		newDetector: newDetector,
		timeouts:    timeouts,
		config:      config,
		logger:      logger,
	}
}

// OnSpeakingChange registers a hook invoked after every speaking transition
func (m *Manager) OnSpeakingChange(fn func(speaking bool)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.onSpeakingChange = fn
}

// EnsureStream returns the live stream, acquiring one from the device if none is held.
// On failure nothing is retained and the error is returned after being logged.
func (m *Manager) EnsureStream(ctx context.Context) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return m.stream, nil
	}

	// a detector without a stream is stale, drop it before acquiring
	m.releaseLocked()

	s, err := m.device.GetUserMedia(ctx, m.config.Constraints)
	if err != nil {
		m.logger.Warn("Failed to acquire microphone stream",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to acquire microphone stream: %w", err)
	}
	if s == nil {
		m.logger.Warn("Capture device returned no stream")
		return nil, fmt.Errorf("capture device returned no stream")
	}

	m.stream = s
	gen := m.generation.Add(1)

	if m.detector == nil && m.newDetector != nil {
		detector, err := m.newDetector(s, m.config.DetectorOptions)
		if err != nil {
			// recording still works without speaking events
			m.logger.Warn("Failed to attach voice activity detector",
				slog.String("stream_id", s.ID()),
				slog.String("error", err.Error()),
			)
		} else {
			m.detector = detector
			m.unsubscribe = []func(){
				detector.On(EventSpeaking, func() { m.handleSpeaking(gen) }),
				detector.On(EventStoppedSpeaking, func() { m.handleStoppedSpeaking(gen) }),
			}
		}
	}

	m.logger.Info("Microphone stream acquired",
		slog.String("stream_id", s.ID()),
		slog.Int("sample_rate", s.SampleRate()),
		slog.Int("tracks", len(s.Tracks())),
		slog.Bool("detector", m.detector != nil),
	)

	return s, nil
}

// Release unsubscribes the detector and stops every track of the live stream.
// It is idempotent.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	m.generation.Add(1)

	for _, unsubscribe := range m.unsubscribe {
		unsubscribe()
	}
	m.unsubscribe = nil

	if m.detector != nil {
		m.detector.Stop()
		m.detector = nil
	}

	if m.stream != nil {
		StopTracks(m.stream)
		m.logger.Info("Microphone stream released",
			slog.String("stream_id", m.stream.ID()),
		)
		m.stream = nil
	}
}

// Stream returns the live stream or nil
func (m *Manager) Stream() Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Active reports whether a live stream is held
func (m *Manager) Active() bool {
	return m.Stream() != nil
}

// HasDetector reports whether a detector is attached
func (m *Manager) HasDetector() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.detector != nil
}

// Speaking returns the last speaking state reported by the detector
func (m *Manager) Speaking() bool {
	return m.speaking.Load()
}

// handleSpeaking runs on speech start: mark speaking and cancel auto-stop
func (m *Manager) handleSpeaking(gen uint64) {
	if m.generation.Load() != gen {
		return
	}
	m.speaking.Store(true)
	m.timeouts.Disarm(timeout.SlotStop)

	m.logger.Debug("Speech started")
	m.notifySpeaking(true)
}

// handleStoppedSpeaking runs on speech end: clear speaking and re-arm auto-stop
func (m *Manager) handleStoppedSpeaking(gen uint64) {
	if m.generation.Load() != gen {
		return
	}
	m.speaking.Store(false)
	if m.config.NonStop {
		m.timeouts.Arm(timeout.SlotStop)
	}

	m.logger.Debug("Speech stopped", slog.Bool("auto_stop_armed", m.config.NonStop))
	m.notifySpeaking(false)
}

func (m *Manager) notifySpeaking(speaking bool) {
	m.hookMu.RLock()
	hook := m.onSpeakingChange
	m.hookMu.RUnlock()

	if hook != nil {
		hook(speaking)
	}
}
