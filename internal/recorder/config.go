package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/transcription"
)

const (
	DefaultStopTimeout = 5 * time.Second
	DefaultTimeSlice   = time.Second
	DefaultSampleRate  = 44100
)

// Configuration errors
var (
	ErrEndpointsRequired   = errors.New("whisper endpoints are required and must not be nil")
	ErrCredentialsRequired = errors.New("either an api key, whisper endpoints or an OnTranscribe callback is required")
	ErrInvalidMode         = errors.New("invalid transcription mode")
)

// OnTranscribeFunc replaces the built-in transcription client. A returned
// transcript without a blob gets the submitted blob.
type OnTranscribeFunc func(ctx context.Context, blob audio.Blob) (Transcript, error)

// Config holds the recorder options
type Config struct {
	APIKey         string
	AutoStart      bool
	AutoTranscribe bool
	Mode           transcription.Mode
	// NonStop arms the stop timeout while the speaker is silent
	NonStop       bool
	RemoveSilence bool
	StopTimeout   time.Duration
	// Streaming transcribes the accumulated audio every TimeSlice while recording
	Streaming bool
	TimeSlice time.Duration

	// OnDataAvailable receives every raw chunk in streaming mode
	OnDataAvailable func(chunk audio.Blob)
	OnTranscribe    OnTranscribeFunc

	// Endpoints must not be nil; empty entries fall back to the defaults
	Endpoints *transcription.Endpoints
	Whisper   transcription.WhisperConfig

	SampleRate     int
	RequestTimeout time.Duration
	MaxRetries     int
}

// DefaultConfig returns the default recorder options
func DefaultConfig() Config {
	endpoints := transcription.DefaultEndpoints()
	return Config{
		AutoTranscribe: true,
		Mode:           transcription.ModeTranscriptions,
		StopTimeout:    DefaultStopTimeout,
		TimeSlice:      DefaultTimeSlice,
		Endpoints:      &endpoints,
		SampleRate:     DefaultSampleRate,
	}
}

// normalize validates the configuration and fills defaulted fields
func (c Config) normalize() (Config, error) {
	if c.Endpoints == nil {
		return c, ErrEndpointsRequired
	}
	if c.APIKey == "" && c.OnTranscribe == nil && c.Endpoints.Empty() {
		return c, ErrCredentialsRequired
	}

	endpoints := *c.Endpoints
	defaults := transcription.DefaultEndpoints()
	if endpoints.Transcriptions == "" {
		endpoints.Transcriptions = defaults.Transcriptions
	}
	if endpoints.Translations == "" {
		endpoints.Translations = defaults.Translations
	}
	c.Endpoints = &endpoints

	if c.Mode == "" {
		c.Mode = transcription.ModeTranscriptions
	}
	if !c.Mode.Valid() {
		return c, fmt.Errorf("%w: %s", ErrInvalidMode, c.Mode)
	}

	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.TimeSlice <= 0 {
		c.TimeSlice = DefaultTimeSlice
	}
	if c.SampleRate <= 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	return c, nil
}

// clientConfig returns the transcription client configuration
func (c Config) clientConfig() transcription.Config {
	return transcription.Config{
		APIKey:     c.APIKey,
		Mode:       c.Mode,
		Endpoints:  *c.Endpoints,
		Whisper:    c.Whisper,
		Timeout:    c.RequestTimeout,
		MaxRetries: c.MaxRetries,
	}
}
