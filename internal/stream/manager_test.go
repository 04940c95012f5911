package stream_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/781574155/use-whisper/internal/stream"
	"github.com/781574155/use-whisper/internal/stream/streamtest"
	"github.com/781574155/use-whisper/internal/timeout"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(nonStop bool) (*stream.Manager, *streamtest.Device, *streamtest.DetectorFactory, *timeout.Controller) {
	device := &streamtest.Device{}
	detectors := &streamtest.DetectorFactory{}
	timeouts := timeout.New(5*time.Second, clock.NewMock())
	timeouts.Register(timeout.SlotStop, func() {})

	config := stream.DefaultManagerConfig()
	config.NonStop = nonStop

	mgr := stream.NewManager(device, detectors.New, timeouts, config, testLogger())
	return mgr, device, detectors, timeouts
}

func TestEnsureStreamAcquiresOnce(t *testing.T) {
	mgr, device, detectors, _ := newTestManager(false)
	ctx := context.Background()

	s1, err := mgr.EnsureStream(ctx)
	if err != nil {
		t.Fatalf("EnsureStream failed: %v", err)
	}
	s2, err := mgr.EnsureStream(ctx)
	if err != nil {
		t.Fatalf("Second EnsureStream failed: %v", err)
	}

	if s1 != s2 {
		t.Error("Expected the same stream while one is held")
	}
	if len(device.Streams()) != 1 {
		t.Errorf("Expected 1 acquisition, got %d", len(device.Streams()))
	}
	if detectors.Count() != 1 {
		t.Errorf("Expected 1 detector, got %d", detectors.Count())
	}
	if got := detectors.Last().Subscribers(); got != 2 {
		t.Errorf("Expected 2 detector subscriptions, got %d", got)
	}
	if s1.SampleRate() != 44100 {
		t.Errorf("Expected 44100 Hz stream, got %d", s1.SampleRate())
	}
}

func TestEnsureStreamAcquisitionFailure(t *testing.T) {
	mgr, device, detectors, _ := newTestManager(false)
	device.Err = stream.ErrPermissionDenied

	s, err := mgr.EnsureStream(context.Background())
	if err == nil {
		t.Fatal("Expected error when permission is denied")
	}
	if !errors.Is(err, stream.ErrPermissionDenied) {
		t.Errorf("Expected ErrPermissionDenied, got %v", err)
	}
	if s != nil {
		t.Error("Expected no stream on failure")
	}
	if mgr.Active() {
		t.Error("Expected no stream to be held after failure")
	}
	if detectors.Count() != 0 {
		t.Errorf("Expected no detector on failure, got %d", detectors.Count())
	}

	// recoverable: a later attempt succeeds
	device.Err = nil
	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if !mgr.Active() {
		t.Error("Expected stream after retry")
	}
}

func TestEnsureStreamDetectorFailure(t *testing.T) {
	mgr, _, detectors, _ := newTestManager(false)
	detectors.Err = errors.New("no analyser")

	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("Expected stream despite detector failure, got %v", err)
	}
	if !mgr.Active() {
		t.Error("Expected stream to be held")
	}
	if mgr.HasDetector() {
		t.Error("Expected no detector")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	mgr, device, detectors, _ := newTestManager(false)

	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("EnsureStream failed: %v", err)
	}
	detector := detectors.Last()

	mgr.Release()
	mgr.Release()

	if mgr.Active() {
		t.Error("Expected no stream after release")
	}
	if !device.Last().Stopped() {
		t.Error("Expected stream tracks to be stopped")
	}
	if detector.Subscribers() != 0 {
		t.Errorf("Expected detector handlers to be unsubscribed, got %d", detector.Subscribers())
	}
	if !detector.Stopped() {
		t.Error("Expected detector to be stopped")
	}
	if mgr.HasDetector() {
		t.Error("Expected detector reference to be cleared")
	}
}

func TestReleaseThenEnsureAcquiresFreshStream(t *testing.T) {
	mgr, device, detectors, _ := newTestManager(false)
	ctx := context.Background()

	first, _ := mgr.EnsureStream(ctx)
	mgr.Release()
	second, err := mgr.EnsureStream(ctx)
	if err != nil {
		t.Fatalf("EnsureStream failed: %v", err)
	}

	if first.ID() == second.ID() {
		t.Error("Expected a fresh stream after release")
	}
	if len(device.Streams()) != 2 {
		t.Errorf("Expected 2 acquisitions, got %d", len(device.Streams()))
	}
	if detectors.Count() != 2 {
		t.Errorf("Expected a fresh detector, got %d detectors", detectors.Count())
	}
}

func TestSpeakingEvents(t *testing.T) {
	tests := []struct {
		name        string
		nonStop     bool
		expectArmed bool
	}{
		{name: "non-stop re-arms on silence", nonStop: true, expectArmed: true},
		{name: "default leaves timeout alone", nonStop: false, expectArmed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mgr, _, detectors, timeouts := newTestManager(tt.nonStop)

			var changes []bool
			mgr.OnSpeakingChange(func(speaking bool) { changes = append(changes, speaking) })

			if _, err := mgr.EnsureStream(context.Background()); err != nil {
				t.Fatalf("EnsureStream failed: %v", err)
			}
			detector := detectors.Last()

			timeouts.Arm(timeout.SlotStop)
			detector.Emit(stream.EventSpeaking)

			if !mgr.Speaking() {
				t.Error("Expected speaking after speaking event")
			}
			if timeouts.Pending(timeout.SlotStop) {
				t.Error("Expected speaking to disarm the stop timeout")
			}

			detector.Emit(stream.EventStoppedSpeaking)

			if mgr.Speaking() {
				t.Error("Expected not speaking after stopped_speaking event")
			}
			if got := timeouts.Pending(timeout.SlotStop); got != tt.expectArmed {
				t.Errorf("Expected stop timeout armed=%v, got %v", tt.expectArmed, got)
			}
			if len(changes) != 2 || !changes[0] || changes[1] {
				t.Errorf("Expected speaking changes [true false], got %v", changes)
			}
		})
	}
}

func TestSpeakingEventsIgnoredAfterRelease(t *testing.T) {
	mgr, _, detectors, timeouts := newTestManager(true)

	if _, err := mgr.EnsureStream(context.Background()); err != nil {
		t.Fatalf("EnsureStream failed: %v", err)
	}
	detector := detectors.Last()
	mgr.Release()

	detector.Emit(stream.EventStoppedSpeaking)

	if timeouts.Pending(timeout.SlotStop) {
		t.Error("Expected no timeout armed by a released detector")
	}
	if mgr.Speaking() {
		t.Error("Expected speaking state untouched by a released detector")
	}
}
