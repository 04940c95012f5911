package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/781574155/use-whisper/internal/stream"
)

// Backends
const (
	BackendArecord = "arecord"
	BackendFFmpeg  = "ffmpeg"
	BackendCommand = "command"
)

// ErrUnavailable is returned when the recording program cannot be started
var ErrUnavailable = errors.New("capture device unavailable")

// Config contains capture device configuration
type Config struct {
	Backend string `yaml:"backend"`
	// Binary overrides the backend's executable
	Binary string `yaml:"binary"`
	// Input names the capture device, backend default when empty
	Input string `yaml:"input"`
	// InputFormat is the ffmpeg input format (alsa, pulse, avfoundation)
	InputFormat string `yaml:"input_format"`
	// Args is the full argument list of the command backend
	Args          []string      `yaml:"args"`
	FrameDuration time.Duration `yaml:"frame_duration"`
}

// DefaultConfig returns an arecord setup with 20ms frames
func DefaultConfig() Config {
	return Config{
		Backend:       BackendArecord,
		InputFormat:   "alsa",
		FrameDuration: 20 * time.Millisecond,
	}
}

// Validate validates the device configuration
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendArecord, BackendFFmpeg:
	case BackendCommand:
		if c.Binary == "" {
			return fmt.Errorf("binary is required for the command backend")
		}
	default:
		return fmt.Errorf("unknown backend: %s", c.Backend)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("frame_duration must be positive, got %v", c.FrameDuration)
	}
	return nil
}

// Device starts one recording process per acquisition
type Device struct {
	config Config
	logger *slog.Logger
}

// New creates a capture device
func New(config Config, logger *slog.Logger) (*Device, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Device{config: config, logger: logger}, nil
}

// GetUserMedia implements stream.Device
func (d *Device) GetUserMedia(ctx context.Context, constraints stream.Constraints) (stream.Stream, error) {
	if !constraints.Audio {
		return nil, fmt.Errorf("audio capture not requested")
	}
	if constraints.Channels > 1 {
		return nil, fmt.Errorf("only mono capture is supported, got %d channels", constraints.Channels)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rate := constraints.SampleRate
	if rate <= 0 {
		rate = 44100
	}

	binary, args := d.command(rate)
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	// the process outlives the acquisition context; its track stops it
	cmd := exec.Command(path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	frameSamples := int(int64(rate) * int64(d.config.FrameDuration) / int64(time.Second))
	if frameSamples <= 0 {
		frameSamples = 1
	}

	s := newStream(uuid.NewString(), rate, cmd, d.logger)
	go s.read(stdout, frameSamples)

	d.logger.Info("Capture stream started",
		slog.String("stream_id", s.ID()),
		slog.String("binary", path),
		slog.Int("sample_rate", rate),
	)
	return s, nil
}

// command returns the executable and arguments for the configured backend
func (d *Device) command(rate int) (string, []string) {
	r := strconv.Itoa(rate)

	switch d.config.Backend {
	case BackendFFmpeg:
		input := d.config.Input
		if input == "" {
			input = "default"
		}
		format := d.config.InputFormat
		if format == "" {
			format = "alsa"
		}
		return d.binary("ffmpeg"), []string{
			"-hide_banner", "-loglevel", "error", "-nostdin",
			"-f", format, "-i", input,
			"-ac", "1", "-ar", r, "-f", "s16le", "pipe:1",
		}
	case BackendCommand:
		return d.config.Binary, d.config.Args
	default:
		args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", r}
		if d.config.Input != "" {
			args = append(args, "-D", d.config.Input)
		}
		return d.binary("arecord"), args
	}
}

func (d *Device) binary(fallback string) string {
	if d.config.Binary != "" {
		return d.config.Binary
	}
	return fallback
}

// readFrame fills buf from r, returning io.EOF only when nothing was read
func readFrame(r io.Reader, buf []byte) (int, error) {
	n, err := io.ReadFull(r, buf)
	if err == io.ErrUnexpectedEOF {
		return n, nil
	}
	return n, err
}
