package encoding

import (
	"context"
	"errors"
)

const (
	// Channels, SampleRate and Bitrate describe the MPEG output
	Channels   = 1
	SampleRate = 44100
	Bitrate    = 96

	// MinViableOutputSize is the largest filtered output still treated as empty
	MinViableOutputSize = 225

	// SilenceRemoveFilter strips leading and inner silence longer than two seconds
	SilenceRemoveFilter = "silenceremove=start_periods=1:stop_periods=-1:start_threshold=-30dB:stop_threshold=-30dB:start_silence=2:stop_silence=2"

	inputFile  = "in.wav"
	outputFile = "out.mp3"
)

// ErrNoEncoder is returned when an encoding path runs without an encoder
var ErrNoEncoder = errors.New("encoder not initialized")

// ErrStaleChunk is returned for a chunk of a session that no longer owns the
// encoder
var ErrStaleChunk = errors.New("chunk of an ended session")

// Encoder compresses PCM incrementally
type Encoder interface {
	// EncodeBuffer encodes samples and returns the bytes produced so far
	EncodeBuffer(samples []int16) ([]byte, error)
	// Flush returns any buffered output; the encoder is not reused afterwards
	Flush() ([]byte, error)
}

// EncoderFactory creates an encoder for the given output format
type EncoderFactory func(channels, sampleRate, kbps int) (Encoder, error)

// Transcoder is an offline transcoding sandbox with a private file system
type Transcoder interface {
	Load(ctx context.Context) error
	WriteFile(name string, data []byte) error
	Exec(ctx context.Context, args ...string) error
	ReadFile(name string) ([]byte, error)
	Terminate() error
}

// TranscoderFactory creates a fresh sandbox
type TranscoderFactory func() (Transcoder, error)

// SilenceRemovalArgs returns the fixed transcoding command
func SilenceRemovalArgs() []string {
	return []string{
		"-i", inputFile,
		"-acodec", "libmp3lame",
		"-b:a", "96k",
		"-ar", "44100",
		"-af", SilenceRemoveFilter,
		outputFile,
	}
}
