package capture_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/capture"
	"github.com/781574155/use-whisper/internal/capture/capturetest"
	"github.com/781574155/use-whisper/internal/stream/streamtest"
)

func newTestSession() (*capture.Session, *capturetest.Factory) {
	factory := &capturetest.Factory{Data: audio.NewBlob([]byte("RIFF"), audio.MimeWAV)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return capture.NewSession(factory.New, logger), factory
}

func TestSessionEnsureCreatesOnce(t *testing.T) {
	session, factory := newTestSession()
	s := streamtest.NewStream("s1", 44100)

	created, err := session.Ensure(s, capture.DefaultOptions())
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if !created {
		t.Error("Expected first Ensure to create a recorder")
	}

	created, err = session.Ensure(s, capture.DefaultOptions())
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	if created {
		t.Error("Expected second Ensure to reuse the recorder")
	}
	if factory.Count() != 1 {
		t.Errorf("Expected 1 recorder, got %d", factory.Count())
	}
	if !session.Active() {
		t.Error("Expected session to be active")
	}
}

func TestSessionEnsureFailure(t *testing.T) {
	session, factory := newTestSession()
	factory.Err = errors.New("boom")

	if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err == nil {
		t.Error("Expected error from failing factory")
	}
	if session.Active() {
		t.Error("Expected no recorder after failure")
	}
}

func TestSessionStartBranches(t *testing.T) {
	tests := []struct {
		name     string
		initial  capture.State
		expected []string
	}{
		{"inactive starts", capture.StateInactive, []string{"start"}},
		{"stopped starts", capture.StateStopped, []string{"start"}},
		{"paused resumes", capture.StatePaused, []string{"resume"}},
		{"recording is left alone", capture.StateRecording, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, factory := newTestSession()
			if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err != nil {
				t.Fatalf("Ensure failed: %v", err)
			}
			rec := factory.Last()
			rec.SetState(tt.initial)

			if err := session.Start(context.Background()); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if calls := rec.Calls(); !reflect.DeepEqual(calls, tt.expected) {
				t.Errorf("Expected calls %v, got %v", tt.expected, calls)
			}
			state, _ := session.State(context.Background())
			if state != capture.StateRecording {
				t.Errorf("Expected state recording, got %s", state)
			}
		})
	}
}

func TestSessionPauseOnlyWhileRecording(t *testing.T) {
	tests := []struct {
		initial capture.State
		paused  bool
	}{
		{capture.StateRecording, true},
		{capture.StatePaused, false},
		{capture.StateStopped, false},
		{capture.StateInactive, false},
	}

	for _, tt := range tests {
		t.Run(tt.initial.String(), func(t *testing.T) {
			session, factory := newTestSession()
			if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err != nil {
				t.Fatalf("Ensure failed: %v", err)
			}
			factory.Last().SetState(tt.initial)

			paused, err := session.Pause(context.Background())
			if err != nil {
				t.Fatalf("Pause failed: %v", err)
			}
			if paused != tt.paused {
				t.Errorf("Expected paused=%v, got %v", tt.paused, paused)
			}
		})
	}
}

func TestSessionStopReturnsRequeriedState(t *testing.T) {
	session, factory := newTestSession()
	if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	rec := factory.Last()
	rec.SetState(capture.StatePaused)

	state, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if state != capture.StateStopped {
		t.Errorf("Expected stopped, got %s", state)
	}

	// a recorder that refuses to stop is reported as it is
	session, factory = newTestSession()
	if _, err := session.Ensure(streamtest.NewStream("s2", 44100), capture.DefaultOptions()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	rec = factory.Last()
	rec.StopState = capture.StateInactive
	rec.SetState(capture.StateRecording)

	state, err = session.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if state != capture.StateInactive {
		t.Errorf("Expected inactive, got %s", state)
	}
}

func TestSessionStopWhenInactiveDoesNotStop(t *testing.T) {
	session, factory := newTestSession()
	if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}

	state, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if state != capture.StateInactive {
		t.Errorf("Expected inactive, got %s", state)
	}
	if len(factory.Last().Calls()) != 0 {
		t.Errorf("Expected no recorder calls, got %v", factory.Last().Calls())
	}
}

func TestSessionDestroy(t *testing.T) {
	session, factory := newTestSession()

	if err := session.Destroy(context.Background()); err != nil {
		t.Errorf("Expected destroy without recorder to be a no-op, got %v", err)
	}

	if _, err := session.Ensure(streamtest.NewStream("s1", 44100), capture.DefaultOptions()); err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	rec := factory.Last()

	if err := session.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if !rec.Destroyed() {
		t.Error("Expected recorder to be destroyed")
	}
	if session.Active() {
		t.Error("Expected recorder reference cleared")
	}

	state, _ := session.State(context.Background())
	if state != capture.StateInactive {
		t.Errorf("Expected inactive without recorder, got %s", state)
	}
}
