// Command mockwhisper serves a local stand-in for the Whisper audio endpoints.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// TranscriptionResponse mirrors the JSON body of the audio endpoints
type TranscriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

type mockServer struct {
	text   string
	delay  time.Duration
	logger *slog.Logger
}

func (s *mockServer) handler(task string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		if err := r.ParseMultipartForm(25 << 20); err != nil {
			http.Error(w, "Error parsing form", http.StatusBadRequest)
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Error getting audio file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		audioData, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Error reading audio file", http.StatusInternalServerError)
			return
		}

		s.logger.Info("Transcription request received",
			slog.String("task", task),
			slog.String("filename", header.Filename),
			slog.String("content_type", header.Header.Get("Content-Type")),
			slog.Int("audio_size", len(audioData)),
			slog.String("model", r.FormValue("model")),
			slog.String("language", r.FormValue("language")),
			slog.String("prompt", r.FormValue("prompt")),
			slog.String("response_format", r.FormValue("response_format")),
			slog.String("temperature", r.FormValue("temperature")),
			slog.Bool("authorized", r.Header.Get("Authorization") != ""),
		)

		// Simulate processing time
		time.Sleep(s.delay)

		text := fmt.Sprintf("%s (%d bytes)", s.text, len(audioData))
		switch r.FormValue("response_format") {
		case "text", "srt", "vtt":
			w.Header().Set("Content-Type", "text/plain")
			w.Write([]byte(text))
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(TranscriptionResponse{
				Text:     text,
				Language: r.FormValue("language"),
			})
		}

		s.logger.Info("Transcription response sent", slog.String("text", text))
	}
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "listen address")
	text := flag.String("text", "this is a test transcription", "text returned for every request")
	delay := flag.Duration("delay", 200*time.Millisecond, "simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	s := &mockServer{text: *text, delay: *delay, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/audio/transcriptions", s.handler("transcriptions"))
	mux.HandleFunc("/v1/audio/translations", s.handler("translations"))

	logger.Info("Mock Whisper server starting",
		slog.String("transcriptions", fmt.Sprintf("http://%s/v1/audio/transcriptions", *addr)),
		slog.String("translations", fmt.Sprintf("http://%s/v1/audio/translations", *addr)),
	)

	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
