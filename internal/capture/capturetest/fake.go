// Package capturetest provides a scriptable recorder for tests.
package capturetest

import (
	"context"
	"errors"
	"sync"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/capture"
	"github.com/781574155/use-whisper/internal/stream"
)

// Recorder is a fake capture.Recorder that follows the same state rules as a
// real one and logs every call
type Recorder struct {
	Stream  stream.Stream
	Options capture.Options

	// Data is returned by Blob
	Data audio.Blob
	// StopState, when set, is the state reported after Stop instead of stopped
	StopState capture.State
	// StartErr, when set, is returned by Start
	StartErr error

	state     capture.State
	calls     []string
	destroyed bool
	mu        sync.Mutex
}

// State implements capture.Recorder
func (r *Recorder) State(ctx context.Context) (capture.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == "" {
		return capture.StateInactive, nil
	}
	return r.state, nil
}

// SetState forces the reported state
func (r *Recorder) SetState(state capture.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state
}

func (r *Recorder) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

// Start implements capture.Recorder
func (r *Recorder) Start(ctx context.Context) error {
	r.record("start")
	if r.StartErr != nil {
		return r.StartErr
	}
	r.SetState(capture.StateRecording)
	return nil
}

// Resume implements capture.Recorder
func (r *Recorder) Resume(ctx context.Context) error {
	r.record("resume")
	r.SetState(capture.StateRecording)
	return nil
}

// Pause implements capture.Recorder
func (r *Recorder) Pause(ctx context.Context) error {
	r.record("pause")
	r.SetState(capture.StatePaused)
	return nil
}

// Stop implements capture.Recorder
func (r *Recorder) Stop(ctx context.Context) error {
	r.record("stop")
	if r.StopState != "" {
		r.SetState(r.StopState)
		return nil
	}
	r.SetState(capture.StateStopped)
	return nil
}

// Blob implements capture.Recorder
func (r *Recorder) Blob(ctx context.Context) (audio.Blob, error) {
	r.record("blob")
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Data.IsEmpty() {
		return audio.Blob{}, errors.New("no data recorded")
	}
	return r.Data, nil
}

// Destroy implements capture.Recorder
func (r *Recorder) Destroy(ctx context.Context) error {
	r.record("destroy")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	return nil
}

// Emit hands chunk to the data-available callback synchronously
func (r *Recorder) Emit(chunk audio.Blob) {
	if r.Options.OnDataAvailable != nil {
		r.Options.OnDataAvailable(chunk)
	}
}

// Calls returns the recorded call names in order
func (r *Recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

// Destroyed reports whether Destroy was called
func (r *Recorder) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}

// Factory creates fake recorders and keeps them for inspection
type Factory struct {
	// Data is copied into every recorder created
	Data audio.Blob
	// Err, when set, is returned instead of a recorder
	Err error

	recorders []*Recorder
	mu        sync.Mutex
}

// New implements capture.Factory
func (f *Factory) New(s stream.Stream, opts capture.Options) (capture.Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	r := &Recorder{Stream: s, Options: opts, Data: f.Data}
	f.recorders = append(f.recorders, r)
	return r, nil
}

// Last returns the most recent recorder or nil
func (f *Factory) Last() *Recorder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recorders) == 0 {
		return nil
	}
	return f.recorders[len(f.recorders)-1]
}

// Count returns how many recorders were created
func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recorders)
}
