// Package commands holds the whisperd command tree.
package commands

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	serviceName    = "whisperd"
	serviceVersion = "1.0.0"
)

var (
	// Access these variables only from a main package:

	Root = &cobra.Command{
		Use:           serviceName,
		Short:         "Record speech and transcribe it with Whisper",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(envFile)
		},
	}

	Serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the recorder behind the HTTP control API",
		Args:  cobra.ExactArgs(0),
		RunE:  serve,
	}

	Transcribe = &cobra.Command{
		Use:   "transcribe FILE",
		Short: "Transcribe one WAV or MP3 file and print the text",
		Args:  cobra.ExactArgs(1),
		RunE:  transcribe,
	}
)

var (
	configPath    string
	envFile       string
	mode          string
	removeSilence bool
)

func init() {
	Root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML configuration file (defaults only when empty)")
	Root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")

	Transcribe.Flags().StringVar(&mode, "mode", "", "transcriptions or translations (overrides the configuration)")
	Transcribe.Flags().BoolVar(&removeSilence, "remove-silence", false, "strip silence with ffmpeg before uploading a WAV file")

	Root.AddCommand(Serve)
	Root.AddCommand(Transcribe)
}

// loadEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}
