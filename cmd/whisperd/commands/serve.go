package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/781574155/use-whisper/internal/config"
	"github.com/781574155/use-whisper/internal/device"
	"github.com/781574155/use-whisper/internal/encoding"
	"github.com/781574155/use-whisper/internal/metrics"
	"github.com/781574155/use-whisper/internal/recorder"
	"github.com/781574155/use-whisper/internal/server"
	"github.com/781574155/use-whisper/internal/vad"
)

func serve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("mode", string(cfg.Whisper.Mode)),
		slog.String("endpoint", cfg.Whisper.Endpoints.For(cfg.Whisper.Mode)),
		slog.Bool("api_key_set", cfg.Whisper.APIKey != ""),
		slog.String("capture_backend", cfg.Capture.Backend),
		slog.Int("sample_rate", cfg.Recorder.SampleRate),
		slog.Bool("streaming", cfg.Recorder.Streaming),
		slog.Bool("non_stop", cfg.Recorder.NonStop),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	dev, err := device.New(cfg.Capture, logger)
	if err != nil {
		return fmt.Errorf("failed to create capture device: %w", err)
	}

	rec, err := recorder.New(cfg.RecorderOptions(), recorder.Dependencies{
		Device:        dev,
		NewDetector:   vad.NewFactory(cfg.VAD, logger),
		NewEncoder:    encoding.NewFFmpegEncoderFactory(cfg.Recorder.FFmpegPath, cfg.Recorder.GetEncodeTimeoutDuration()),
		NewTranscoder: encoding.NewFFmpegSandboxFactory(cfg.Recorder.FFmpegPath),
	}, logger, appMetrics)
	if err != nil {
		return fmt.Errorf("failed to create recorder: %w", err)
	}
	rec.OnChange(transcriptLogger(logger))

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, rec, appMetrics)
		if err := httpServer.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	rec.Open(ctx)

	logger.Info("Service started successfully, waiting for signals...")
	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop HTTP server first (stop accepting new commands)
	if httpServer != nil {
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := rec.Close(shutdownCtx); err != nil {
		logger.Error("Error closing recorder", slog.String("error", err.Error()))
	}

	logger.Info("Service stopped")
	return nil
}

// transcriptLogger logs every newly published transcript text
func transcriptLogger(logger *slog.Logger) func(recorder.State) {
	var (
		mu   sync.Mutex
		last *string
	)
	return func(state recorder.State) {
		text := state.Transcript.Text
		if text == nil {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if text == last {
			return
		}
		last = text
		logger.Info("Transcript", slog.String("text", *text), slog.String("session_id", state.SessionID))
	}
}
