package transcription

import (
	"context"
	"fmt"

	"github.com/781574155/use-whisper/internal/audio"
)

// Mode selects the Whisper operation
type Mode string

const (
	ModeTranscriptions Mode = "transcriptions"
	ModeTranslations   Mode = "translations"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModeTranscriptions || m == ModeTranslations
}

const (
	// DefaultModel is sent when no model is configured
	DefaultModel = "whisper-1"
	// DefaultLanguage is sent in transcriptions mode when no language is configured
	DefaultLanguage = "en"

	// FileName and FileMimeType label the uploaded audio
	FileName     = "speech.mp3"
	FileMimeType = audio.MimeMPEG
)

// Endpoints holds the URL of each mode
type Endpoints struct {
	Transcriptions string `yaml:"transcriptions"`
	Translations   string `yaml:"translations"`
}

// DefaultEndpoints returns the OpenAI audio endpoints
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Transcriptions: "https://api.openai.com/v1/audio/transcriptions",
		Translations:   "https://api.openai.com/v1/audio/translations",
	}
}

// For returns the endpoint of mode; unknown modes use transcriptions
func (e Endpoints) For(mode Mode) string {
	if mode == ModeTranslations {
		return e.Translations
	}
	return e.Transcriptions
}

// Empty reports whether no endpoint is set
func (e Endpoints) Empty() bool {
	return e.Transcriptions == "" && e.Translations == ""
}

// WhisperConfig carries the optional request parameters. Zero values are not
// sent, except Model and Language which fall back to defaults.
type WhisperConfig struct {
	Model          string  `yaml:"model"`
	Language       string  `yaml:"language"`
	Prompt         string  `yaml:"prompt"`
	ResponseFormat string  `yaml:"response_format"`
	Temperature    float64 `yaml:"temperature"`
}

// File is the audio uploaded in the multipart form
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// NewFile wraps blob as the upload file
func NewFile(blob audio.Blob) File {
	return File{
		Name:     FileName,
		MimeType: FileMimeType,
		Data:     blob.Data,
	}
}

// TranscribeFunc performs one transcription request
type TranscribeFunc func(ctx context.Context, file File) (string, error)

// StatusError is returned for non-2xx responses
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP error %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the request may succeed when repeated
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
