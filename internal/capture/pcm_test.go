package capture_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/capture"
	"github.com/781574155/use-whisper/internal/stream/streamtest"
)

func newPCMRecorder(t *testing.T, s *streamtest.Stream, opts capture.Options) *capture.PCMRecorder {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec, err := capture.NewPCMRecorder(s, opts, logger)
	if err != nil {
		t.Fatalf("NewPCMRecorder failed: %v", err)
	}
	return rec
}

func frame(value int16, n int) []int16 {
	f := make([]int16, n)
	for i := range f {
		f[i] = value
	}
	return f
}

func TestPCMRecorderRecordsWhileRecording(t *testing.T) {
	ctx := context.Background()
	s := streamtest.NewStream("s1", 16000)
	rec := newPCMRecorder(t, s, capture.Options{SampleRate: 16000, Channels: 1})

	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Push(frame(100, 160))
	time.Sleep(20 * time.Millisecond)

	if err := rec.Pause(ctx); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	s.Push(frame(200, 160))
	time.Sleep(20 * time.Millisecond)

	if err := rec.Resume(ctx); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	s.Push(frame(300, 160))

	if err := rec.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	state, _ := rec.State(ctx)
	if state != capture.StateStopped {
		t.Errorf("Expected stopped, got %s", state)
	}

	blob, err := rec.Blob(ctx)
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}
	if blob.MimeType != audio.MimeWAV {
		t.Errorf("Expected %s, got %s", audio.MimeWAV, blob.MimeType)
	}

	samples, rate, err := audio.DecodeWAV(blob.Data)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}
	for _, v := range samples {
		if v == 200 {
			t.Fatal("Expected frames pushed while paused to be dropped")
		}
	}
	if len(samples) == 0 || samples[len(samples)-1] != 300 {
		t.Errorf("Expected recording to end with resumed audio, got %d samples", len(samples))
	}
}

func TestPCMRecorderStateRules(t *testing.T) {
	ctx := context.Background()
	rec := newPCMRecorder(t, streamtest.NewStream("s1", 44100), capture.DefaultOptions())

	if err := rec.Pause(ctx); err == nil {
		t.Error("Expected pause from inactive to fail")
	}
	if err := rec.Resume(ctx); err == nil {
		t.Error("Expected resume from inactive to fail")
	}
	if err := rec.Stop(ctx); err == nil {
		t.Error("Expected stop from inactive to fail")
	}
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := rec.Start(ctx); err == nil {
		t.Error("Expected second start to fail")
	}
	if err := rec.Pause(ctx); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if err := rec.Start(ctx); err == nil {
		t.Error("Expected start from paused to fail")
	}
	if err := rec.Stop(ctx); err != nil {
		t.Fatalf("Stop from paused failed: %v", err)
	}
	if err := rec.Start(ctx); err != nil {
		t.Errorf("Expected restart from stopped to succeed, got %v", err)
	}
}

func TestPCMRecorderDeliversChunks(t *testing.T) {
	ctx := context.Background()
	s := streamtest.NewStream("s1", 8000)
	chunks := make(chan audio.Blob, 8)

	rec := newPCMRecorder(t, s, capture.Options{
		SampleRate: 8000,
		Channels:   1,
		TimeSlice:  10 * time.Millisecond,
		OnDataAvailable: func(chunk audio.Blob) {
			chunks <- chunk
		},
	})
	if err := rec.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	s.Push(frame(42, 80))

	select {
	case chunk := <-chunks:
		samples, _, err := audio.DecodeWAV(chunk.Data)
		if err != nil {
			t.Fatalf("DecodeWAV failed: %v", err)
		}
		if len(samples) != 80 {
			t.Errorf("Expected 80 samples in chunk, got %d", len(samples))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Expected a chunk to be delivered")
	}

	if err := rec.Destroy(ctx); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if _, err := rec.State(ctx); err != capture.ErrDestroyed {
		t.Errorf("Expected ErrDestroyed, got %v", err)
	}
	if s.Subscribers() != 0 {
		t.Errorf("Expected subscription released, got %d", s.Subscribers())
	}
}

func TestPCMRecorderRejectsStereo(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := capture.NewPCMRecorder(streamtest.NewStream("s1", 44100), capture.Options{Channels: 2}, logger); err == nil {
		t.Error("Expected error for stereo options")
	}
}
