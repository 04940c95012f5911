package audio

import (
	"encoding/binary"
	"fmt"
)

// MIME types produced by the capture and encoding stages
const (
	MimeWAV  = "audio/wav"
	MimeMPEG = "audio/mpeg"
)

// Blob is a self-describing piece of audio: the bytes and their MIME type
type Blob struct {
	Data     []byte `json:"-"`
	MimeType string `json:"mime_type"`
}

// NewBlob creates a blob, copying data so later mutation of the source is harmless
func NewBlob(data []byte, mimeType string) Blob {
	buf := make([]byte, len(data))
	copy(buf, data)
	return Blob{Data: buf, MimeType: mimeType}
}

// Size returns the number of bytes in the blob
func (b Blob) Size() int {
	return len(b.Data)
}

// IsEmpty reports whether the blob carries no audio bytes
func (b Blob) IsEmpty() bool {
	return len(b.Data) == 0
}

// String implements fmt.Stringer for log output
func (b Blob) String() string {
	return fmt.Sprintf("%s (%d bytes)", b.MimeType, len(b.Data))
}

// BytesToSamples converts little-endian PCM-16 bytes into samples.
// A trailing odd byte is dropped.
func BytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// SamplesToBytes converts PCM-16 samples into little-endian bytes
func SamplesToBytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}
