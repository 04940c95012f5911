package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/looplab/fsm"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/capture"
	"github.com/781574155/use-whisper/internal/device"
	"github.com/781574155/use-whisper/internal/encoding"
	"github.com/781574155/use-whisper/internal/metrics"
	"github.com/781574155/use-whisper/internal/stream"
	"github.com/781574155/use-whisper/internal/timeout"
	"github.com/781574155/use-whisper/internal/vad"
)

// Dependencies are the collaborators of a recorder. Nil entries are replaced
// by the subprocess microphone, the energy detector, the PCM recorder and the
// ffmpeg encoder and transcoder.
type Dependencies struct {
	Device        stream.Device
	NewDetector   stream.DetectorFactory
	NewRecorder   capture.Factory
	NewEncoder    encoding.EncoderFactory
	NewTranscoder encoding.TranscoderFactory
	Clock         clock.Clock
}

func (d Dependencies) withDefaults(logger *slog.Logger) (Dependencies, error) {
	if d.Device == nil {
		dev, err := device.New(device.DefaultConfig(), logger)
		if err != nil {
			return d, fmt.Errorf("failed to create capture device: %w", err)
		}
		d.Device = dev
	}
	if d.NewDetector == nil {
		d.NewDetector = vad.NewFactory(vad.DefaultConfig(), logger)
	}
	if d.NewRecorder == nil {
		d.NewRecorder = capture.NewPCMFactory(logger)
	}
	if d.NewEncoder == nil {
		d.NewEncoder = encoding.NewFFmpegEncoderFactory("", 0)
	}
	if d.NewTranscoder == nil {
		d.NewTranscoder = encoding.NewFFmpegSandboxFactory("")
	}
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	return d, nil
}

// State is a snapshot of the observable recorder state
type State struct {
	Phase        Phase      `json:"phase"`
	Recording    bool       `json:"recording"`
	Speaking     bool       `json:"speaking"`
	Transcribing bool       `json:"transcribing"`
	Transcript   Transcript `json:"-"`
	SessionID    string     `json:"session_id,omitempty"`
}

// Recorder owns one stream, one capture session and one encoder at a time
type Recorder struct {
	config   Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	strategy transcriptionStrategy
	clock    clock.Clock

	streams  *stream.Manager
	capture  *capture.Session
	pipeline *encoding.Pipeline
	timeouts *timeout.Controller
	machine  *fsm.FSM

	// cmdMu serializes commands
	cmdMu  sync.Mutex
	closed bool

	// mu guards the observable fields below
	mu         sync.RWMutex
	transcript Transcript
	sessionID  uuid.UUID
	startedAt  time.Time
	onChange   func(State)
}

// New creates a recorder. It fails only on configuration errors.
func New(config Config, deps Dependencies, logger *slog.Logger, m *metrics.Metrics) (*Recorder, error) {
	config, err := config.normalize()
	if err != nil {
		return nil, err
	}
	deps, err = deps.withDefaults(logger)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		config:   config,
		logger:   logger,
		metrics:  m,
		strategy: newStrategy(config),
		clock:    deps.Clock,
		capture:  capture.NewSession(deps.NewRecorder, logger),
		pipeline: encoding.NewPipeline(deps.NewEncoder, deps.NewTranscoder, logger),
		timeouts: timeout.New(config.StopTimeout, deps.Clock),
	}
	r.machine = newMachine(r.onPhase)

	managerConfig := stream.DefaultManagerConfig()
	managerConfig.Constraints.SampleRate = config.SampleRate
	managerConfig.NonStop = config.NonStop
	r.streams = stream.NewManager(deps.Device, deps.NewDetector, r.timeouts, managerConfig, logger)
	r.streams.OnSpeakingChange(r.onSpeaking)

	r.timeouts.Register(timeout.SlotStop, r.autoStop)

	logger.Info("Recorder created",
		slog.String("mode", string(config.Mode)),
		slog.String("strategy", r.strategy.kind.String()),
		slog.Bool("auto_transcribe", config.AutoTranscribe),
		slog.Bool("streaming", config.Streaming),
		slog.Bool("non_stop", config.NonStop),
		slog.Bool("remove_silence", config.RemoveSilence),
		slog.Duration("stop_timeout", config.StopTimeout),
	)

	return r, nil
}

// Open starts recording when AutoStart is set
func (r *Recorder) Open(ctx context.Context) {
	if r.config.AutoStart {
		r.StartRecording(ctx)
	}
}

// Close tears the recorder down from any phase. Every cleanup step runs; their
// failures are combined in the returned error. Commands issued afterwards are
// ignored.
func (r *Recorder) Close(ctx context.Context) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var result *multierror.Error

	r.pipeline.ClearChunks()
	if err := r.pipeline.Release(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := r.capture.Destroy(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	r.timeouts.DisarmAll()
	r.streams.Release()
	if err := r.resetPhase(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	r.endSession()

	if err := result.ErrorOrNil(); err != nil {
		r.logger.Warn("Recorder teardown incomplete", slog.String("error", err.Error()))
		return err
	}
	r.logger.Info("Recorder closed")
	return nil
}

// OnChange registers fn to receive a snapshot after every observable change.
// fn runs synchronously and must not issue commands. It may be called from
// several goroutines at once.
func (r *Recorder) OnChange(fn func(State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// State returns a snapshot of the observable state
func (r *Recorder) State() State {
	return r.snapshot(r.phase())
}

// Transcript returns the last published transcript
func (r *Recorder) Transcript() Transcript {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.transcript
}

func (r *Recorder) phase() Phase {
	return Phase(r.machine.Current())
}

func (r *Recorder) snapshot(phase Phase) State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := State{
		Phase:        phase,
		Recording:    phase == PhaseRecording,
		Speaking:     r.streams.Speaking(),
		Transcribing: phase == PhaseTranscribing,
		Transcript:   r.transcript,
	}
	if r.sessionID != uuid.Nil {
		state.SessionID = r.sessionID.String()
	}
	return state
}

func (r *Recorder) notify(state State) {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()

	if fn != nil {
		fn(state)
	}
}

// onPhase runs inside the phase machine's transition
func (r *Recorder) onPhase(phase Phase) {
	r.logger.Debug("Recorder phase changed", slog.String("phase", string(phase)))
	r.notify(r.snapshot(phase))
}

// onSpeaking runs on the detector goroutine
func (r *Recorder) onSpeaking(speaking bool) {
	r.metrics.SetSpeaking(speaking)
	r.notify(r.State())
}

func (r *Recorder) fire(ctx context.Context, event string) error {
	if !r.machine.Can(event) {
		return fmt.Errorf("event %s not allowed in phase %s", event, r.phase())
	}
	// a cancelled caller must not strand the machine mid-transition
	return r.machine.Event(context.WithoutCancel(ctx), event)
}

func (r *Recorder) resetPhase(ctx context.Context) error {
	if r.phase() == PhaseIdle {
		return nil
	}
	return r.fire(ctx, eventReset)
}

func (r *Recorder) publish(t Transcript) {
	r.mu.Lock()
	r.transcript = t
	r.mu.Unlock()

	r.notify(r.State())
}

// publishText replaces the transcript text and keeps its blob
func (r *Recorder) publishText(session uuid.UUID, text string) bool {
	r.mu.Lock()
	if r.sessionID != session {
		r.mu.Unlock()
		return false
	}
	r.transcript.Text = &text
	r.mu.Unlock()

	r.notify(r.State())
	return true
}

func (r *Recorder) beginSession() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = uuid.New()
	r.startedAt = r.clock.Now()
	return r.sessionID
}

func (r *Recorder) endSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionID = uuid.Nil
	r.startedAt = time.Time{}
}

func (r *Recorder) isCurrent(session uuid.UUID) bool {
	current, _ := r.currentSession()
	return current == session
}

func (r *Recorder) currentSession() (uuid.UUID, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessionID, r.startedAt
}

// blobPtr returns a pointer to a copy of blob
func blobPtr(blob audio.Blob) *audio.Blob {
	return &blob
}
