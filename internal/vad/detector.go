package vad

import (
	"log/slog"
	"sync"
	"time"

	"github.com/781574155/use-whisper/internal/stream"
)

const frameBuffer = 64

// Detector polls a stream's audio and emits speaking transitions
type Detector struct {
	processor *Processor
	interval  time.Duration
	logger    *slog.Logger

	handlers map[stream.Event]map[int]func()
	nextID   int

	cancel   func()
	done     chan struct{}
	stopOnce sync.Once

	mu sync.Mutex
}

// NewDetector starts a detector on s
func NewDetector(s stream.Stream, config Config, opts stream.DetectorOptions, logger *slog.Logger) (*Detector, error) {
	processor, err := NewProcessor(config)
	if err != nil {
		return nil, err
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = stream.DefaultDetectorInterval
	}

	frames, cancel := s.Subscribe(frameBuffer)
	d := &Detector{
		processor: processor,
		interval:  interval,
		logger:    logger,
		handlers:  make(map[stream.Event]map[int]func()),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	go d.run(frames)

	logger.Debug("Voice activity detector started",
		slog.String("stream_id", s.ID()),
		slog.Duration("interval", interval),
	)
	return d, nil
}

// NewFactory returns a stream.DetectorFactory creating energy detectors
func NewFactory(config Config, logger *slog.Logger) stream.DetectorFactory {
	return func(s stream.Stream, opts stream.DetectorOptions) (stream.Detector, error) {
		return NewDetector(s, config, opts, logger)
	}
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

// Stop implements stream.Detector. It waits for the polling loop to exit.
func (d *Detector) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		<-d.done
	})
}

// Stats returns the processor statistics
func (d *Detector) Stats() ProcessorStats {
	return d.processor.GetStats()
}

func (d *Detector) run(frames <-chan []int16) {
	defer close(d.done)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	var window []int16
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			window = append(window, frame...)
		case <-ticker.C:
			if len(window) == 0 {
				continue
			}
			result, err := d.processor.Process(window)
			window = window[:0]
			if err != nil {
				d.logger.Warn("Failed to process window", slog.String("error", err.Error()))
				continue
			}
			if !result.Changed {
				continue
			}
			if result.Speaking {
				d.emit(stream.EventSpeaking)
			} else {
				d.emit(stream.EventStoppedSpeaking)
			}
		}
	}
}

func (d *Detector) emit(event stream.Event) {
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
