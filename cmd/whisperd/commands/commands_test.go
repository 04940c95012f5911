package commands

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/recorder"
)

func TestReadAudio(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		file     string
		mimeType string
		wantErr  bool
	}{
		{"wav", "speech.wav", audio.MimeWAV, false},
		{"mp3 upper case", "speech.MP3", audio.MimeMPEG, false},
		{"unsupported", "speech.ogg", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
				t.Fatalf("Failed to write file: %v", err)
			}

			blob, err := readAudio(path)
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if blob.MimeType != tt.mimeType {
				t.Errorf("Expected %s, got %s", tt.mimeType, blob.MimeType)
			}
		})
	}
}

func TestLoadEnv(t *testing.T) {
	if err := loadEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Errorf("Expected a missing env file to be ignored, got: %v", err)
	}

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("WHISPERD_TEST_VALUE=from-file\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv("WHISPERD_TEST_VALUE", "")
	os.Unsetenv("WHISPERD_TEST_VALUE")

	if err := loadEnv(path); err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}
	if got := os.Getenv("WHISPERD_TEST_VALUE"); got != "from-file" {
		t.Errorf("Expected from-file, got %q", got)
	}
}

func TestTranscriptLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	log := transcriptLogger(logger)

	text := "hello"
	state := recorder.State{Transcript: recorder.Transcript{Text: &text}}
	log(state)
	log(state)
	log(recorder.State{})

	if got := strings.Count(buf.String(), "Transcript"); got != 1 {
		t.Errorf("Expected 1 transcript line, got %d", got)
	}
}

func TestTranscriptLoggerConcurrent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	log := transcriptLogger(logger)

	text := "hello"
	state := recorder.State{Transcript: recorder.Transcript{Text: &text}}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				log(state)
			}
		}()
	}
	wg.Wait()

	if got := strings.Count(buf.String(), "Transcript"); got != 1 {
		t.Errorf("Expected 1 transcript line, got %d", got)
	}
}
