package transcription

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type capturedRequest struct {
	path     string
	auth     string
	fields   map[string]string
	fileName string
	fileType string
	fileData string
}

func newTestServer(t *testing.T, status int, body string) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	requests := make(chan capturedRequest, 10)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Failed to parse multipart form: %v", err)
		}
		captured := capturedRequest{
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			fields: make(map[string]string),
		}
		for key, values := range r.MultipartForm.Value {
			captured.fields[key] = values[0]
		}
		if files := r.MultipartForm.File["file"]; len(files) == 1 {
			captured.fileName = files[0].Filename
			captured.fileType = files[0].Header.Get("Content-Type")
			f, err := files[0].Open()
			if err == nil {
				data, _ := io.ReadAll(f)
				f.Close()
				captured.fileData = string(data)
			}
		}
		requests <- captured

		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	return server, requests
}

func testEndpoints(server *httptest.Server) Endpoints {
	return Endpoints{
		Transcriptions: server.URL + "/v1/audio/transcriptions",
		Translations:   server.URL + "/v1/audio/translations",
	}
}

func testFile() File {
	return File{Name: FileName, MimeType: FileMimeType, Data: []byte("mp3-bytes")}
}

func TestTranscribeTranscriptionsFields(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{"text":"hello"}`)

	client, err := NewClient(Config{
		APIKey:    "sk-test",
		Mode:      ModeTranscriptions,
		Endpoints: testEndpoints(server),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Transcribe(context.Background(), testFile())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello" {
		t.Errorf("Expected hello, got %q", text)
	}

	req := <-requests
	if req.path != "/v1/audio/transcriptions" {
		t.Errorf("Expected transcriptions endpoint, got %s", req.path)
	}
	if req.auth != "Bearer sk-test" {
		t.Errorf("Expected bearer header, got %q", req.auth)
	}
	if req.fileName != "speech.mp3" {
		t.Errorf("Expected speech.mp3, got %s", req.fileName)
	}
	if req.fileType != "audio/mpeg" {
		t.Errorf("Expected audio/mpeg, got %s", req.fileType)
	}
	if req.fileData != "mp3-bytes" {
		t.Errorf("Expected file bytes, got %q", req.fileData)
	}

	expected := map[string]string{"model": "whisper-1", "language": "en"}
	if len(req.fields) != len(expected) {
		t.Errorf("Expected fields %v, got %v", expected, req.fields)
	}
	for key, value := range expected {
		if req.fields[key] != value {
			t.Errorf("Expected %s=%s, got %q", key, value, req.fields[key])
		}
	}
}

func TestTranscribeTranslationsFields(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{"text":"bonjour"}`)

	client, err := NewClient(Config{
		Mode:      ModeTranslations,
		Endpoints: testEndpoints(server),
		Whisper: WhisperConfig{
			Model:          "whisper-2",
			Language:       "fr",
			Prompt:         "greeting",
			ResponseFormat: "json",
			Temperature:    0.2,
		},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := client.Transcribe(context.Background(), testFile()); err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	req := <-requests
	if req.path != "/v1/audio/translations" {
		t.Errorf("Expected translations endpoint, got %s", req.path)
	}
	if req.auth != "" {
		t.Errorf("Expected no auth header without API key, got %q", req.auth)
	}
	if _, ok := req.fields["language"]; ok {
		t.Error("Expected no language field in translations mode")
	}

	expected := map[string]string{
		"model":           "whisper-2",
		"prompt":          "greeting",
		"response_format": "json",
		"temperature":     "0.2",
	}
	for key, value := range expected {
		if req.fields[key] != value {
			t.Errorf("Expected %s=%s, got %q", key, value, req.fields[key])
		}
	}
}

func TestTranscribeTextResponseFormat(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, "plain transcript\n")

	client, err := NewClient(Config{
		Endpoints: testEndpoints(server),
		Whisper:   WhisperConfig{ResponseFormat: "text"},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Transcribe(context.Background(), testFile())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "plain transcript" {
		t.Errorf("Expected plain transcript, got %q", text)
	}
}

func TestTranscribeStatusError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusUnauthorized, `{"error":"bad key"}`)

	client, err := NewClient(Config{Endpoints: testEndpoints(server), MaxRetries: 2})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Transcribe(context.Background(), testFile())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", statusErr.StatusCode)
	}

	stats := client.GetStats()
	if stats.TotalRetries != 0 {
		t.Errorf("Expected no retries for 401, got %d", stats.TotalRetries)
	}
	if stats.FailedRequests != 1 {
		t.Errorf("Expected 1 failed request, got %d", stats.FailedRequests)
	}
}

func TestTranscribeMalformedJSON(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `not json`)

	client, err := NewClient(Config{Endpoints: testEndpoints(server)})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Transcribe(context.Background(), testFile()); err == nil {
		t.Error("Expected parse error")
	}
}

func TestTranscribeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"second time"}`))
	}))
	defer server.Close()

	client, err := NewClient(Config{
		Endpoints:    testEndpoints(server),
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	text, err := client.Transcribe(context.Background(), testFile())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "second time" {
		t.Errorf("Expected second time, got %q", text)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 calls, got %d", calls.Load())
	}
	if stats := client.GetStats(); stats.TotalRetries != 1 || stats.SuccessRequests != 1 {
		t.Errorf("Expected 1 retry and 1 success, got %+v", stats)
	}
}

func TestTranscribeDefaultIsSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(Config{Endpoints: testEndpoints(server)})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Transcribe(context.Background(), testFile()); err == nil {
		t.Error("Expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("Expected 1 call, got %d", calls.Load())
	}
}

func TestNewClientValidation(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"invalid mode", Config{Mode: "dictation", Endpoints: DefaultEndpoints()}},
		{"missing endpoint for mode", Config{Mode: ModeTranslations, Endpoints: Endpoints{Transcriptions: "http://localhost"}}},
		{"no endpoints", Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewClient(tt.config); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	client, err := NewClient(Config{Endpoints: DefaultEndpoints()})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if client.Endpoint() != "https://api.openai.com/v1/audio/transcriptions" {
		t.Errorf("Expected default transcriptions endpoint, got %s", client.Endpoint())
	}
	if client.config.MaxRetries != 0 {
		t.Errorf("Expected 0 retries, got %d", client.config.MaxRetries)
	}
	if client.config.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", client.config.Timeout)
	}
}
