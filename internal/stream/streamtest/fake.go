// Package streamtest provides in-memory capture devices, streams and detectors
// for tests.
package streamtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/781574155/use-whisper/internal/stream"
)

// Track is a stoppable fake track
type Track struct {
	id      string
	stopped bool
	mu      sync.Mutex
}

// ID implements stream.Track
func (t *Track) ID() string { return t.id }

// Stop implements stream.Track
func (t *Track) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

// Stopped reports whether Stop was called
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream is a fake stream whose frames are pushed with Push
type Stream struct {
	id         string
	sampleRate int
	track      *Track

	subscribers map[int]chan []int16
	nextSub     int
	mu          sync.Mutex
}

// NewStream creates a fake stream with one track
func NewStream(id string, sampleRate int) *Stream {
	return &Stream{
		id:          id,
		sampleRate:  sampleRate,
		track:       &Track{id: id + "-audio"},
		subscribers: make(map[int]chan []int16),
	}
}

// ID implements stream.Stream
func (s *Stream) ID() string { return s.id }

// SampleRate implements stream.Stream
func (s *Stream) SampleRate() int { return s.sampleRate }

// Tracks implements stream.Stream
func (s *Stream) Tracks() []stream.Track { return []stream.Track{s.track} }

// Subscribe implements stream.Stream
func (s *Stream) Subscribe(buffer int) (<-chan []int16, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan []int16, buffer)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				close(sub)
				delete(s.subscribers, id)
			}
		})
	}
}

// Push delivers a frame to every subscriber, dropping it for full subscribers
func (s *Stream) Push(frame []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

// Stopped reports whether the stream's track was stopped
func (s *Stream) Stopped() bool {
	return s.track.Stopped()
}

// Device hands out fake streams and records every acquisition
type Device struct {
	// Err, when set, is returned by GetUserMedia instead of a stream
	Err error

	streams []*Stream
	mu      sync.Mutex
}

// GetUserMedia implements stream.Device
func (d *Device) GetUserMedia(ctx context.Context, constraints stream.Constraints) (stream.Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return nil, d.Err
	}
	rate := constraints.SampleRate
	if rate == 0 {
		rate = 44100
	}
	s := NewStream(fmt.Sprintf("stream-%d", len(d.streams)+1), rate)
	d.streams = append(d.streams, s)
	return s, nil
}

// Streams returns every stream handed out so far
func (d *Device) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Stream(nil), d.streams...)
}

// Last returns the most recent stream or nil
func (d *Device) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// Detector is a fake detector whose events are fired with Emit
type Detector struct {
	handlers map[stream.Event]map[int]func()
	nextID   int
	stopped  bool
	mu       sync.Mutex
}

// NewDetector creates an empty fake detector
func NewDetector() *Detector {
	return &Detector{handlers: make(map[stream.Event]map[int]func())}
}

// On implements stream.Detector
func (d *Detector) On(event stream.Event, handler func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers[event] == nil {
		d.handlers[event] = make(map[int]func())
	}
	id := d.nextID
	d.nextID++
	d.handlers[event][id] = handler

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.handlers[event], id)
	}
}

// Stop implements stream.Detector
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
}

// Emit invokes every handler subscribed to event
func (d *Detector) Emit(event stream.Event) {
	d.mu.Lock()
	handlers := make([]func(), 0, len(d.handlers[event]))
	for _, h := range d.handlers[event] {
		handlers = append(handlers, h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

// Subscribers returns the number of live subscriptions
func (d *Detector) Subscribers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, hs := range d.handlers {
		n += len(hs)
	}
	return n
}

// Stopped reports whether Stop was called
func (d *Detector) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// DetectorFactory returns a stream.DetectorFactory that records every detector it creates
type DetectorFactory struct {
	// Err, when set, is returned instead of a detector
	Err error

	detectors []*Detector
	mu        sync.Mutex
}

// New implements stream.DetectorFactory
func (f *DetectorFactory) New(s stream.Stream, opts stream.DetectorOptions) (stream.Detector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	d := NewDetector()
	f.detectors = append(f.detectors, d)
	return d, nil
}

// Last returns the most recently created detector or nil
func (f *DetectorFactory) Last() *Detector {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.detectors) == 0 {
		return nil
	}
	return f.detectors[len(f.detectors)-1]
}

// Count returns how many detectors were created
func (f *DetectorFactory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.detectors)
}
