package encoding

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/781574155/use-whisper/internal/audio"
)

// DefaultFFmpegTimeout bounds a single encoder invocation
const DefaultFFmpegTimeout = 30 * time.Second

// FFmpegEncoder encodes each buffer with one ffmpeg libmp3lame run. Every call
// yields a complete MPEG stream, so Flush has nothing left to return.
type FFmpegEncoder struct {
	binary     string
	channels   int
	sampleRate int
	kbps       int
	timeout    time.Duration
}

// NewFFmpegEncoderFactory returns an EncoderFactory using the ffmpeg binary
// at path, or "ffmpeg" from PATH when empty
func NewFFmpegEncoderFactory(path string, timeout time.Duration) EncoderFactory {
	if path == "" {
		path = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultFFmpegTimeout
	}
	return func(channels, sampleRate, kbps int) (Encoder, error) {
		binary, err := exec.LookPath(path)
		if err != nil {
			return nil, fmt.Errorf("ffmpeg not found: %w", err)
		}
		return &FFmpegEncoder{
			binary:     binary,
			channels:   channels,
			sampleRate: sampleRate,
			kbps:       kbps,
			timeout:    timeout,
		}, nil
	}
}

// EncodeBuffer implements Encoder
func (e *FFmpegEncoder) EncodeBuffer(samples []int16) ([]byte, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	rate := strconv.Itoa(e.sampleRate)
	args := []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", "s16le", "-ar", rate, "-ac", strconv.Itoa(e.channels), "-i", "pipe:0",
		"-acodec", "libmp3lame", "-b:a", fmt.Sprintf("%dk", e.kbps), "-ar", rate,
		"-f", "mp3", "pipe:1",
	}

	cmd := exec.CommandContext(ctx, e.binary, args...)
	cmd.Stdin = bytes.NewReader(audio.SamplesToBytes(samples))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Flush implements Encoder
func (e *FFmpegEncoder) Flush() ([]byte, error) {
	return nil, nil
}

// FFmpegSandbox runs ffmpeg inside a private temporary directory
type FFmpegSandbox struct {
	binary string
	dir    string
}

// NewFFmpegSandboxFactory returns a TranscoderFactory using the ffmpeg binary
// at path, or "ffmpeg" from PATH when empty
func NewFFmpegSandboxFactory(path string) TranscoderFactory {
	if path == "" {
		path = "ffmpeg"
	}
	return func() (Transcoder, error) {
		return &FFmpegSandbox{binary: path}, nil
	}
}

// Load implements Transcoder
func (s *FFmpegSandbox) Load(ctx context.Context) error {
	binary, err := exec.LookPath(s.binary)
	if err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	dir, err := os.MkdirTemp("", "whisper-ffmpeg-")
	if err != nil {
		return fmt.Errorf("failed to create sandbox dir: %w", err)
	}
	s.binary = binary
	s.dir = dir
	return nil
}

func (s *FFmpegSandbox) path(name string) (string, error) {
	if s.dir == "" {
		return "", fmt.Errorf("sandbox not loaded")
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("invalid sandbox file name: %q", name)
	}
	return filepath.Join(s.dir, name), nil
}

// WriteFile implements Transcoder
func (s *FFmpegSandbox) WriteFile(name string, data []byte) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o600)
}

// Exec implements Transcoder. Relative file names resolve inside the sandbox.
func (s *FFmpegSandbox) Exec(ctx context.Context, args ...string) error {
	if s.dir == "" {
		return fmt.Errorf("sandbox not loaded")
	}

	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin", "-y"}, args...)
	cmd := exec.CommandContext(ctx, s.binary, full...)
	cmd.Dir = s.dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// ReadFile implements Transcoder
func (s *FFmpegSandbox) ReadFile(name string) ([]byte, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Dir returns the sandbox directory, empty before Load
func (s *FFmpegSandbox) Dir() string {
	return s.dir
}

// Terminate implements Transcoder. It removes the sandbox directory.
func (s *FFmpegSandbox) Terminate() error {
	if s.dir == "" {
		return nil
	}
	dir := s.dir
	s.dir = ""
	return os.RemoveAll(dir)
}
