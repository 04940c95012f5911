package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/781574155/use-whisper/internal/device"
	"github.com/781574155/use-whisper/internal/recorder"
	"github.com/781574155/use-whisper/internal/transcription"
	"github.com/781574155/use-whisper/internal/vad"
)

// APIKeyEnv fills an empty whisper api key
const APIKeyEnv = "OPENAI_API_KEY"

// Config represents the complete service configuration
type Config struct {
	Whisper  WhisperConfig  `yaml:"whisper"`
	Recorder RecorderConfig `yaml:"recorder"`
	Capture  device.Config  `yaml:"capture"`
	VAD      vad.Config     `yaml:"vad"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// WhisperConfig contains transcription API configuration
type WhisperConfig struct {
	APIKey         string                  `yaml:"api_key"`
	Mode           transcription.Mode      `yaml:"mode"`
	Endpoints      transcription.Endpoints `yaml:"endpoints"`
	Model          string                  `yaml:"model"`
	Language       string                  `yaml:"language"`
	Prompt         string                  `yaml:"prompt"`
	ResponseFormat string                  `yaml:"response_format"`
	Temperature    float64                 `yaml:"temperature"`
	Timeout        int                     `yaml:"timeout"` // seconds
	MaxRetries     int                     `yaml:"max_retries"`
}

// RecorderConfig contains the recording lifecycle options
type RecorderConfig struct {
	AutoStart      bool    `yaml:"auto_start"`
	AutoTranscribe bool    `yaml:"auto_transcribe"`
	NonStop        bool    `yaml:"non_stop"`
	RemoveSilence  bool    `yaml:"remove_silence"`
	Streaming      bool    `yaml:"streaming"`
	StopTimeout    float64 `yaml:"stop_timeout"` // seconds
	TimeSlice      float64 `yaml:"time_slice"`   // seconds
	SampleRate     int     `yaml:"sample_rate"`
	FFmpegPath     string  `yaml:"ffmpeg_path"`
	EncodeTimeout  int     `yaml:"encode_timeout"` // seconds
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file overrides it
func Default() *Config {
	return &Config{
		Whisper: WhisperConfig{
			Mode:       transcription.ModeTranscriptions,
			Endpoints:  transcription.DefaultEndpoints(),
			Model:      transcription.DefaultModel,
			Language:   transcription.DefaultLanguage,
			Timeout:    30,
			MaxRetries: 0,
		},
		Recorder: RecorderConfig{
			AutoTranscribe: true,
			StopTimeout:    recorder.DefaultStopTimeout.Seconds(),
			TimeSlice:      recorder.DefaultTimeSlice.Seconds(),
			SampleRate:     recorder.DefaultSampleRate,
			FFmpegPath:     "ffmpeg",
			EncodeTimeout:  30,
		},
		Capture: device.DefaultConfig(),
		VAD:     vad.DefaultConfig(),
		HTTP: HTTPConfig{
			Port:    8080,
			Address: "127.0.0.1",
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file over the defaults. An empty path loads
// the defaults alone. The api key falls back to OPENAI_API_KEY.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if config.Whisper.APIKey == "" {
		config.Whisper.APIKey = os.Getenv(APIKeyEnv)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Whisper.Validate(); err != nil {
		return fmt.Errorf("whisper config: %w", err)
	}

	if err := c.Recorder.Validate(); err != nil {
		return fmt.Errorf("recorder config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.VAD.Validate(); err != nil {
		return fmt.Errorf("vad config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates whisper configuration
func (w *WhisperConfig) Validate() error {
	if !w.Mode.Valid() {
		return fmt.Errorf("mode must be 'transcriptions' or 'translations', got '%s'", w.Mode)
	}

	if w.APIKey == "" && w.Endpoints.Empty() {
		return fmt.Errorf("api_key or endpoints must be set")
	}

	if w.Temperature < 0 || w.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", w.Temperature)
	}

	validFormats := map[string]bool{
		"": true, "json": true, "text": true, "srt": true, "verbose_json": true, "vtt": true,
	}
	if !validFormats[w.ResponseFormat] {
		return fmt.Errorf("response_format must be one of [json, text, srt, verbose_json, vtt], got '%s'", w.ResponseFormat)
	}

	if w.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", w.Timeout)
	}

	if w.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", w.MaxRetries)
	}

	return nil
}

// Validate validates recorder configuration
func (r *RecorderConfig) Validate() error {
	if r.StopTimeout <= 0 {
		return fmt.Errorf("stop_timeout must be positive, got %f", r.StopTimeout)
	}

	if r.TimeSlice <= 0 {
		return fmt.Errorf("time_slice must be positive, got %f", r.TimeSlice)
	}

	if r.SampleRate < 8000 || r.SampleRate > 48000 {
		return fmt.Errorf("sample_rate must be between 8000 and 48000 Hz, got %d", r.SampleRate)
	}

	if r.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if r.EncodeTimeout < 1 {
		return fmt.Errorf("encode_timeout must be at least 1 second, got %d", r.EncodeTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// anything besides stdout and stderr is a file path
	if l.Output == "" {
		return fmt.Errorf("output cannot be empty")
	}

	return nil
}

// GetStopTimeoutDuration returns the stop timeout as a time.Duration
func (r *RecorderConfig) GetStopTimeoutDuration() time.Duration {
	return time.Duration(r.StopTimeout * float64(time.Second))
}

// GetTimeSliceDuration returns the streaming time slice as a time.Duration
func (r *RecorderConfig) GetTimeSliceDuration() time.Duration {
	return time.Duration(r.TimeSlice * float64(time.Second))
}

// GetEncodeTimeoutDuration returns the per-buffer encoder timeout as a time.Duration
func (r *RecorderConfig) GetEncodeTimeoutDuration() time.Duration {
	return time.Duration(r.EncodeTimeout) * time.Second
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (w *WhisperConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(w.Timeout) * time.Second
}

// RecorderOptions converts the file configuration into recorder options.
// Callbacks are left for the caller to set.
func (c *Config) RecorderOptions() recorder.Config {
	endpoints := c.Whisper.Endpoints

	options := recorder.DefaultConfig()
	options.APIKey = c.Whisper.APIKey
	options.AutoStart = c.Recorder.AutoStart
	options.AutoTranscribe = c.Recorder.AutoTranscribe
	options.Mode = c.Whisper.Mode
	options.NonStop = c.Recorder.NonStop
	options.RemoveSilence = c.Recorder.RemoveSilence
	options.StopTimeout = c.Recorder.GetStopTimeoutDuration()
	options.Streaming = c.Recorder.Streaming
	options.TimeSlice = c.Recorder.GetTimeSliceDuration()
	options.Endpoints = &endpoints
	options.Whisper = c.Whisper.requestOptions()
	options.SampleRate = c.Recorder.SampleRate
	options.RequestTimeout = c.Whisper.GetTimeoutDuration()
	options.MaxRetries = c.Whisper.MaxRetries
	return options
}

// ClientConfig converts the whisper section into a transcription client configuration
func (c *Config) ClientConfig() transcription.Config {
	return transcription.Config{
		APIKey:     c.Whisper.APIKey,
		Mode:       c.Whisper.Mode,
		Endpoints:  c.Whisper.Endpoints,
		Whisper:    c.Whisper.requestOptions(),
		Timeout:    c.Whisper.GetTimeoutDuration(),
		MaxRetries: c.Whisper.MaxRetries,
	}
}

func (w *WhisperConfig) requestOptions() transcription.WhisperConfig {
	return transcription.WhisperConfig{
		Model:          w.Model,
		Language:       w.Language,
		Prompt:         w.Prompt,
		ResponseFormat: w.ResponseFormat,
		Temperature:    w.Temperature,
	}
}
