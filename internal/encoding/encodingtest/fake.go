// Package encodingtest provides deterministic encoders and transcoders for tests.
package encodingtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/781574155/use-whisper/internal/encoding"
)

// Encoder produces "mp3:<n>;" for a buffer of n samples
type Encoder struct {
	Channels   int
	SampleRate int
	Kbps       int
	// Err, when set, is returned by EncodeBuffer
	Err error

	buffers int
	flushed bool
	mu      sync.Mutex
}

// EncodeBuffer implements encoding.Encoder
func (e *Encoder) EncodeBuffer(samples []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	e.buffers++
	return []byte(fmt.Sprintf("mp3:%d;", len(samples))), nil
}

// Flush implements encoding.Encoder
func (e *Encoder) Flush() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.flushed = true
	return nil, nil
}

// Buffers returns how many buffers were encoded
func (e *Encoder) Buffers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffers
}

// Flushed reports whether Flush was called
func (e *Encoder) Flushed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushed
}

// EncoderFactory records every encoder it creates
type EncoderFactory struct {
	// Err, when set, is returned instead of an encoder
	Err error

	encoders []*Encoder
	mu       sync.Mutex
}

// New implements encoding.EncoderFactory
func (f *EncoderFactory) New(channels, sampleRate, kbps int) (encoding.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	e := &Encoder{Channels: channels, SampleRate: sampleRate, Kbps: kbps}
	f.encoders = append(f.encoders, e)
	return e, nil
}

// Last returns the most recent encoder or nil
func (f *EncoderFactory) Last() *Encoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.encoders) == 0 {
		return nil
	}
	return f.encoders[len(f.encoders)-1]
}

// Count returns how many encoders were created
func (f *EncoderFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.encoders)
}

// Transcoder keeps files in memory and answers Exec with Output
type Transcoder struct {
	// Output is written to the command's last argument on Exec
	Output []byte
	// ExecErr, when set, is returned by Exec
	ExecErr error

	files      map[string][]byte
	args       []string
	loaded     bool
	terminated bool
	mu         sync.Mutex
}

// Load implements encoding.Transcoder
func (t *Transcoder) Load(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files = make(map[string][]byte)
	t.loaded = true
	return nil
}

// WriteFile implements encoding.Transcoder
func (t *Transcoder) WriteFile(name string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.loaded {
		return errors.New("not loaded")
	}
	t.files[name] = append([]byte(nil), data...)
	return nil
}

// Exec implements encoding.Transcoder
func (t *Transcoder) Exec(ctx context.Context, args ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.args = append([]string(nil), args...)
	if t.ExecErr != nil {
		return t.ExecErr
	}
	if len(args) > 0 {
		t.files[args[len(args)-1]] = append([]byte(nil), t.Output...)
	}
	return nil
}

// ReadFile implements encoding.Transcoder
func (t *Transcoder) ReadFile(name string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.files[name]
	if !ok {
		return nil, fmt.Errorf("file %s not found", name)
	}
	return data, nil
}

// Terminate implements encoding.Transcoder
func (t *Transcoder) Terminate() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminated = true
	return nil
}

// Args returns the arguments of the last Exec
func (t *Transcoder) Args() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.args...)
}

// File returns a file written into the sandbox
func (t *Transcoder) File(name string) []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.files[name]
}

// Terminated reports whether Terminate was called
func (t *Transcoder) Terminated() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.terminated
}

// TranscoderFactory hands out transcoders that all produce Output
type TranscoderFactory struct {
	Output  []byte
	ExecErr error

	transcoders []*Transcoder
	mu          sync.Mutex
}

// New implements encoding.TranscoderFactory
func (f *TranscoderFactory) New() (encoding.Transcoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &Transcoder{Output: f.Output, ExecErr: f.ExecErr}
	f.transcoders = append(f.transcoders, t)
	return t, nil
}

// Last returns the most recent transcoder or nil
func (f *TranscoderFactory) Last() *Transcoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.transcoders) == 0 {
		return nil
	}
	return f.transcoders[len(f.transcoders)-1]
}

// Count returns how many transcoders were created
func (f *TranscoderFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transcoders)
}
