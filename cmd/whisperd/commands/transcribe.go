package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/config"
	"github.com/781574155/use-whisper/internal/encoding"
	"github.com/781574155/use-whisper/internal/transcription"
)

func transcribe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if mode != "" {
		cfg.Whisper.Mode = transcription.Mode(mode)
		if !cfg.Whisper.Mode.Valid() {
			return fmt.Errorf("invalid mode: %s", mode)
		}
	}

	logger, closeLog := initLogger(cfg.Logging)
	defer closeLog()

	blob, err := readAudio(args[0])
	if err != nil {
		return err
	}

	pipeline := encoding.NewPipeline(
		encoding.NewFFmpegEncoderFactory(cfg.Recorder.FFmpegPath, cfg.Recorder.GetEncodeTimeoutDuration()),
		encoding.NewFFmpegSandboxFactory(cfg.Recorder.FFmpegPath),
		logger,
	)

	ctx := cmd.Context()
	if blob.MimeType == audio.MimeWAV {
		if removeSilence {
			out, abandoned, err := pipeline.RemoveSilence(ctx, blob)
			if err != nil {
				return fmt.Errorf("failed to remove silence: %w", err)
			}
			if abandoned {
				logger.Info("Recording is silent, nothing to transcribe", slog.String("file", args[0]))
				return nil
			}
			blob = out
		} else {
			info, err := audio.GetWAVInfo(blob.Data)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			if err := pipeline.EnsureEncoder(uuid.Nil, info.SampleRate); err != nil {
				return err
			}
			defer pipeline.Release()

			if blob, err = pipeline.Encode(blob); err != nil {
				return fmt.Errorf("failed to encode %s: %w", args[0], err)
			}
		}
	}

	client, err := transcription.NewClient(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}
	defer client.Close()

	logger.Debug("Sending audio",
		slog.String("endpoint", client.Endpoint()),
		slog.Int("bytes", blob.Size()),
	)

	text, err := client.Transcribe(ctx, transcription.NewFile(blob))
	if err != nil {
		return fmt.Errorf("transcription failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// readAudio loads a WAV or MP3 file, typed by its extension
func readAudio(path string) (audio.Blob, error) {
	var mimeType string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		mimeType = audio.MimeWAV
	case ".mp3":
		mimeType = audio.MimeMPEG
	default:
		return audio.Blob{}, fmt.Errorf("unsupported audio file %s: expected .wav or .mp3", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return audio.Blob{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return audio.NewBlob(data, mimeType), nil
}
