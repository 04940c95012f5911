package stream

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned by devices when microphone access is refused
var ErrPermissionDenied = errors.New("microphone permission denied")

// Constraints describes the stream requested from a capture device
type Constraints struct {
	Audio      bool
	SampleRate int
	Channels   int
}

// Track is one stoppable source inside a stream
type Track interface {
	ID() string
	Stop()
}

// Stream is a live mono PCM-16 capture handle
type Stream interface {
	ID() string
	SampleRate() int
	// Subscribe delivers PCM frames until the returned cancel func is called or
	// the stream's tracks are stopped, whichever happens first.
	Subscribe(buffer int) (<-chan []int16, func())
	Tracks() []Track
}

// Device hands out live microphone streams
type Device interface {
	GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error)
}

// Event is emitted by a voice-activity detector
type Event string

const (
	EventSpeaking        Event = "speaking"
	EventStoppedSpeaking Event = "stopped_speaking"
)

// DefaultDetectorInterval is the detector polling interval
const DefaultDetectorInterval = 100 * time.Millisecond

// DetectorOptions configures a voice-activity detector
type DetectorOptions struct {
	Interval time.Duration // polling interval
	Play     bool          // echo the monitored audio, unused headless
}

// Detector emits speaking / stopped_speaking events for a stream
type Detector interface {
	// On subscribes handler to event and returns its unsubscribe func
	On(event Event, handler func()) func()
	// Stop releases the detector's hold on the stream
	Stop()
}

// DetectorFactory wraps a stream with a voice-activity detector
type DetectorFactory func(s Stream, opts DetectorOptions) (Detector, error)

// StopTracks stops every track of s
func StopTracks(s Stream) {
	if s == nil {
		return
	}
	for _, track := range s.Tracks() {
		track.Stop()
	}
}
