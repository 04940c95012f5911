package audio

import (
	"bytes"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	wavBitDepth    = 16
	wavPCMFormat   = 1
	wavMonoChannel = 1
)

// WAVInfo describes a decoded WAV file
type WAVInfo struct {
	SampleRate    int           `json:"sample_rate"`
	Channels      int           `json:"channels"`
	BitsPerSample int           `json:"bits_per_sample"`
	NumSamples    int           `json:"num_samples"`
	Duration      time.Duration `json:"duration"`
}

// EncodeWAV encodes mono PCM-16 samples into an in-memory WAV file.
// An empty sample slice yields a valid header-only file.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	out := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(out, sampleRate, wavBitDepth, wavMonoChannel, wavPCMFormat)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: wavMonoChannel,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(samples)),
		SourceBitDepth: wavBitDepth,
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := encoder.Write(buf); err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to write WAV samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize WAV file: %w", err)
	}

	data, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("failed to read WAV file from memory: %w", err)
	}
	return data, nil
}

// DecodeWAV decodes a 16-bit WAV file into samples and its sample rate.
// Multi-channel input is returned interleaved as stored.
func DecodeWAV(data []byte) ([]int16, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file (%d bytes)", len(data))
	}
	if decoder.BitDepth != wavBitDepth {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", decoder.BitDepth)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read PCM data: %w", err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, int(decoder.SampleRate), nil
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	samples, sampleRate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	channels := int(decoder.NumChans)
	if channels == 0 {
		channels = wavMonoChannel
	}

	frames := len(samples) / channels
	return &WAVInfo{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: int(decoder.BitDepth),
		NumSamples:    len(samples),
		Duration:      time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second)),
	}, nil
}
