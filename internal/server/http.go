package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/781574155/use-whisper/internal/config"
	"github.com/781574155/use-whisper/internal/metrics"
	"github.com/781574155/use-whisper/internal/recorder"
)

// Controller is the recorder surface driven by the API
type Controller interface {
	StartRecording(ctx context.Context)
	PauseRecording(ctx context.Context)
	StopRecording(ctx context.Context)
	Transcribe(ctx context.Context)
	State() recorder.State
}

// HTTPServer provides the recorder control API
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	controller Controller
	metrics    *metrics.Metrics

	// Server state
	startTime time.Time
	mu        sync.RWMutex
	commands  uint64
}

// TranscriptInfo describes the last published transcript
type TranscriptInfo struct {
	Text     *string `json:"text"`
	MimeType string  `json:"mime_type,omitempty"`
	Size     int     `json:"size"`
}

// StateResponse is the body of GET /recording and of every command
type StateResponse struct {
	recorder.State
	Transcript *TranscriptInfo `json:"transcript,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger,
	appConfig *config.Config, controller Controller, m *metrics.Metrics) *HTTPServer {

	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		controller: controller,
		metrics:    m,
		startTime:  time.Now(),
	}

	h.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:     h.Handler(),
		ReadTimeout: 10 * time.Second,
		// stop waits for the transcription
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed API
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	h.setupRoutes(mux)
	return mux
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Recording commands
	mux.HandleFunc("/recording", h.withMetrics("/recording", h.handleState))
	mux.HandleFunc("/recording/start", h.withMetrics("/recording/start", h.command("start", h.controller.StartRecording)))
	mux.HandleFunc("/recording/pause", h.withMetrics("/recording/pause", h.command("pause", h.controller.PauseRecording)))
	mux.HandleFunc("/recording/stop", h.withMetrics("/recording/stop", h.command("stop", h.controller.StopRecording)))
	mux.HandleFunc("/recording/transcribe", h.withMetrics("/recording/transcribe", h.command("transcribe", h.controller.Transcribe)))

	mux.HandleFunc("/transcript/audio", h.withMetrics("/transcript/audio", h.handleTranscriptAudio))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// command wraps a recorder command. The command outlives a disconnecting
// client so a stop always finishes its transcription.
func (h *HTTPServer) command(name string, run func(context.Context)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		h.mu.Lock()
		h.commands++
		h.mu.Unlock()

		h.logger.Debug("Recorder command", slog.String("command", name))
		run(context.WithoutCancel(r.Context()))

		h.writeState(w)
	}
}

// handleState implements the /recording endpoint
func (h *HTTPServer) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.writeState(w)
}

func (h *HTTPServer) writeState(w http.ResponseWriter) {
	state := h.controller.State()
	response := StateResponse{
		State:     state,
		Timestamp: time.Now().UTC(),
	}
	if blob := state.Transcript.Blob; blob != nil || state.Transcript.Text != nil {
		info := &TranscriptInfo{Text: state.Transcript.Text}
		if blob != nil {
			info.MimeType = blob.MimeType
			info.Size = blob.Size()
		}
		response.Transcript = info
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleTranscriptAudio implements the /transcript/audio endpoint
func (h *HTTPServer) handleTranscriptAudio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	blob := h.controller.State().Transcript.Blob
	if blob == nil || blob.IsEmpty() {
		http.Error(w, "No recording available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", blob.MimeType)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", blob.Size()))
	w.Write(blob.Data)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.mu.RLock()
	commands := h.commands
	h.mu.RUnlock()

	state := h.controller.State()
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "whisperd",
			"version": "1.0.0",
		},
		"recorder": map[string]interface{}{
			"phase":    state.Phase,
			"commands": commands,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config == nil {
		http.Error(w, "No configuration", http.StatusNotFound)
		return
	}

	// Return sanitized configuration (api key omitted)
	sanitizedConfig := map[string]interface{}{
		"whisper": map[string]interface{}{
			"mode":            h.config.Whisper.Mode,
			"endpoints":       h.config.Whisper.Endpoints,
			"model":           h.config.Whisper.Model,
			"language":        h.config.Whisper.Language,
			"response_format": h.config.Whisper.ResponseFormat,
			"temperature":     h.config.Whisper.Temperature,
			"timeout":         h.config.Whisper.Timeout,
			"max_retries":     h.config.Whisper.MaxRetries,
			"api_key_set":     h.config.Whisper.APIKey != "",
		},
		"recorder": map[string]interface{}{
			"auto_start":      h.config.Recorder.AutoStart,
			"auto_transcribe": h.config.Recorder.AutoTranscribe,
			"non_stop":        h.config.Recorder.NonStop,
			"remove_silence":  h.config.Recorder.RemoveSilence,
			"streaming":       h.config.Recorder.Streaming,
			"stop_timeout":    h.config.Recorder.StopTimeout,
			"time_slice":      h.config.Recorder.TimeSlice,
			"sample_rate":     h.config.Recorder.SampleRate,
		},
		"capture": map[string]interface{}{
			"backend":        h.config.Capture.Backend,
			"input":          h.config.Capture.Input,
			"frame_duration": h.config.Capture.FrameDuration.String(),
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitizedConfig)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Whisper Recorder",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                      "API documentation",
			"GET /health":                "Service health check",
			"GET /recording":             "Current recorder state",
			"POST /recording/start":      "Start or resume recording",
			"POST /recording/pause":      "Pause recording",
			"POST /recording/stop":       "Stop recording and transcribe",
			"POST /recording/transcribe": "Transcribe the last recording",
			"GET /transcript/audio":      "Audio of the last recording",
			"GET /config":                "Get service configuration",
			"GET /metrics":               "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
