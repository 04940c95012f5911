package recorder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/781574155/use-whisper/internal/audio"
	"github.com/781574155/use-whisper/internal/capture"
	"github.com/781574155/use-whisper/internal/encoding"
	"github.com/781574155/use-whisper/internal/metrics"
	"github.com/781574155/use-whisper/internal/timeout"
)

// StartRecording starts a new recording from idle or resumes a paused one
func (r *Recorder) StartRecording(ctx context.Context) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		r.logger.Warn("Start ignored, recorder closed")
		return
	}
	r.startLocked(ctx)
}

func (r *Recorder) startLocked(ctx context.Context) {
	phase := r.phase()
	if phase != PhaseIdle && phase != PhasePaused {
		r.logger.Debug("Start ignored", slog.String("phase", string(phase)))
		return
	}

	// a fresh start owns whatever it acquires and gives it back on failure
	fresh := phase == PhaseIdle
	ok := false
	defer func() {
		if !ok && fresh {
			r.releaseSession(ctx)
		}
	}()

	st, err := r.streams.EnsureStream(ctx)
	if err != nil {
		r.metrics.RecordAcquireFailure()
		r.logger.Warn("Recording not started, no audio stream", slog.String("error", err.Error()))
		return
	}

	if !r.capture.Active() {
		session := r.beginSession()
		if _, err := r.capture.Ensure(st, r.captureOptions(session)); err != nil {
			r.logger.Error("Recording not started", slog.String("error", err.Error()))
			return
		}
	}

	session, _ := r.currentSession()
	if err := r.pipeline.EnsureEncoder(session, r.config.SampleRate); err != nil {
		r.logger.Error("Recording not started", slog.String("error", err.Error()))
		return
	}

	if err := r.capture.Start(ctx); err != nil {
		r.logger.Error("Recording not started", slog.String("error", err.Error()))
		return
	}

	if r.config.NonStop {
		r.timeouts.Arm(timeout.SlotStop)
	}

	if err := r.fire(ctx, eventStart); err != nil {
		r.logger.Error("Failed to enter recording phase", slog.String("error", err.Error()))
		return
	}
	ok = true

	if fresh {
		r.metrics.RecordRecordingStarted()
		r.logger.Info("Recording started", slog.String("session_id", session.String()))
	} else {
		r.logger.Info("Recording resumed", slog.String("session_id", session.String()))
	}
}

// captureOptions returns the recorder options of a new capture session.
// Chunks are only requested when they will be transcribed.
func (r *Recorder) captureOptions(session uuid.UUID) capture.Options {
	opts := capture.DefaultOptions()
	opts.SampleRate = r.config.SampleRate
	if r.config.Streaming {
		opts.TimeSlice = r.config.TimeSlice
		if r.config.AutoTranscribe {
			opts.OnDataAvailable = r.dataAvailableHandler(session)
		}
	}
	return opts
}

// PauseRecording pauses an active recording. The stream stays open.
func (r *Recorder) PauseRecording(ctx context.Context) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		r.logger.Warn("Pause ignored, recorder closed")
		return
	}

	if phase := r.phase(); phase != PhaseRecording {
		r.logger.Debug("Pause ignored", slog.String("phase", string(phase)))
		return
	}

	if _, err := r.capture.Pause(ctx); err != nil {
		r.logger.Error("Failed to pause recording", slog.String("error", err.Error()))
		return
	}
	r.timeouts.Disarm(timeout.SlotStop)

	if err := r.fire(ctx, eventPause); err != nil {
		r.logger.Error("Failed to enter paused phase", slog.String("error", err.Error()))
		return
	}
	r.logger.Info("Recording paused")
}

// StopRecording stops the recording, releases the stream and, with
// AutoTranscribe, transcribes the result. Capture resources are released on
// every path.
func (r *Recorder) StopRecording(ctx context.Context) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		r.logger.Warn("Stop ignored, recorder closed")
		return
	}
	r.stopLocked(ctx, false)
}

// autoStop is the stop timeout callback
func (r *Recorder) autoStop() {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		return
	}
	r.logger.Info("Stop timeout fired", slog.Duration("timeout", r.config.StopTimeout))
	r.stopLocked(context.Background(), true)
}

func (r *Recorder) stopLocked(ctx context.Context, auto bool) {
	phase := r.phase()
	if phase != PhaseRecording && phase != PhasePaused {
		r.logger.Debug("Stop ignored", slog.String("phase", string(phase)))
		return
	}

	session, startedAt := r.currentSession()
	defer r.releaseSession(ctx)

	state, err := r.capture.Stop(ctx)
	if err != nil {
		r.logger.Error("Failed to stop recorder", slog.String("error", err.Error()))
		return
	}
	r.streams.Release()
	r.timeouts.Disarm(timeout.SlotStop)

	if err := r.fire(ctx, eventStop); err != nil {
		r.logger.Error("Failed to enter stopping phase", slog.String("error", err.Error()))
		return
	}

	duration := r.clock.Since(startedAt)
	r.metrics.RecordRecordingStopped(duration.Seconds(), auto)
	r.logger.Info("Recording stopped",
		slog.String("session_id", session.String()),
		slog.Duration("duration", duration),
		slog.Bool("auto", auto),
	)

	if r.config.AutoTranscribe {
		r.transcribeStopped(ctx, state)
		return
	}

	blob, err := r.capture.Blob(ctx)
	if err != nil {
		r.logger.Error("Failed to fetch recording", slog.String("error", err.Error()))
		return
	}
	r.publish(Transcript{Blob: blobPtr(blob)})
}

// transcribeStopped transcribes the capture session that was just stopped.
// Nothing happens unless the recorder reports stopped.
func (r *Recorder) transcribeStopped(ctx context.Context, state capture.State) {
	if !r.pipeline.HasEncoder() || !r.capture.Active() {
		r.logger.Warn("No encoder or recorder, skipping transcription")
		return
	}
	if state != capture.StateStopped {
		r.logger.Warn("Recorder did not stop, skipping transcription", slog.String("state", state.String()))
		return
	}

	blob, err := r.capture.Blob(ctx)
	if err != nil {
		r.logger.Error("Failed to fetch recording", slog.String("error", err.Error()))
		return
	}
	r.transcribe(ctx, blob)
}

// releaseSession destroys the capture session, clears the chunks, flushes the
// encoder, releases the stream and returns to idle
func (r *Recorder) releaseSession(ctx context.Context) {
	if err := r.capture.Destroy(ctx); err != nil {
		r.logger.Warn("Failed to destroy recorder", slog.String("error", err.Error()))
	}
	r.pipeline.ClearChunks()
	if err := r.pipeline.Release(); err != nil {
		r.logger.Warn("Failed to release encoder", slog.String("error", err.Error()))
	}
	r.streams.Release()
	r.timeouts.Disarm(timeout.SlotStop)
	if err := r.resetPhase(ctx); err != nil {
		r.logger.Error("Failed to return to idle", slog.String("error", err.Error()))
	}
	r.endSession()
}

// Transcribe transcribes again the last published recording. It only acts
// while idle.
func (r *Recorder) Transcribe(ctx context.Context) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	if r.closed {
		r.logger.Warn("Transcribe ignored, recorder closed")
		return
	}
	if phase := r.phase(); phase != PhaseIdle {
		r.logger.Debug("Transcribe ignored", slog.String("phase", string(phase)))
		return
	}

	last := r.Transcript()
	if last.Blob == nil || last.Blob.IsEmpty() {
		r.logger.Info("Nothing to transcribe")
		return
	}

	if !r.config.RemoveSilence && last.Blob.MimeType != audio.MimeMPEG && !r.pipeline.HasEncoder() {
		if err := r.pipeline.EnsureEncoder(uuid.Nil, r.config.SampleRate); err != nil {
			r.logger.Error("Transcription not started", slog.String("error", err.Error()))
			return
		}
		defer func() {
			if err := r.pipeline.Release(); err != nil {
				r.logger.Warn("Failed to release encoder", slog.String("error", err.Error()))
			}
		}()
	}

	r.transcribe(ctx, *last.Blob)
}

// transcribe runs the full sequence over a recording: silence removal or
// encoding, then the transcription strategy. The recording is published
// without text when any step fails or silence removal leaves nothing.
func (r *Recorder) transcribe(ctx context.Context, raw audio.Blob) {
	if err := r.fire(ctx, eventTranscribe); err != nil {
		r.logger.Error("Failed to enter transcribing phase", slog.String("error", err.Error()))
		return
	}
	defer func() {
		if err := r.fire(ctx, eventFinish); err != nil {
			r.logger.Error("Failed to leave transcribing phase", slog.String("error", err.Error()))
		}
	}()

	blob := raw
	switch {
	case r.config.RemoveSilence:
		out, abandoned, err := r.pipeline.RemoveSilence(ctx, raw)
		if err != nil {
			r.metrics.RecordEncodeFailure()
			r.logger.Error("Failed to remove silence", slog.String("error", err.Error()))
			r.publish(Transcript{Blob: blobPtr(raw)})
			return
		}
		if abandoned {
			r.metrics.RecordSilenceAbandoned()
			r.logger.Info("Recording is silent, skipping transcription", slog.Int("bytes", raw.Size()))
			r.publish(Transcript{Blob: blobPtr(raw)})
			return
		}
		blob = out
	case raw.MimeType != audio.MimeMPEG:
		out, err := r.pipeline.Encode(raw)
		if err != nil {
			r.metrics.RecordEncodeFailure()
			r.logger.Error("Failed to encode recording", slog.String("error", err.Error()))
			r.publish(Transcript{Blob: blobPtr(raw)})
			return
		}
		blob = out
	}

	result, err := r.runStrategy(ctx, metrics.KindFinal, blob)
	if err != nil {
		r.logger.Error("Transcription failed", slog.String("error", err.Error()))
		r.publish(Transcript{Blob: blobPtr(blob)})
		return
	}
	r.publish(result)
}

func (r *Recorder) runStrategy(ctx context.Context, kind string, blob audio.Blob) (Transcript, error) {
	r.metrics.RecordTranscriptionRequest(kind)
	start := time.Now()

	result, err := r.strategy.transcribe(ctx, blob)
	if err != nil {
		r.metrics.RecordTranscriptionFailure(kind, time.Since(start).Seconds())
		return Transcript{}, err
	}
	r.metrics.RecordTranscriptionSuccess(kind, time.Since(start).Seconds())

	r.logger.Debug("Transcription completed",
		slog.String("kind", kind),
		slog.Int("bytes", blob.Size()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

// dataAvailableHandler returns the chunk callback of one capture session.
// Chunks of an ended session are ignored. The session may end while the
// callback runs, so it is checked again before every step.
func (r *Recorder) dataAvailableHandler(session uuid.UUID) func(audio.Blob) {
	return func(chunk audio.Blob) {
		ctx := context.Background()

		if !r.isCurrent(session) {
			return
		}
		if r.config.OnDataAvailable != nil {
			r.config.OnDataAvailable(chunk)
		}

		accumulated, err := r.pipeline.EncodeChunk(session, chunk)
		if errors.Is(err, encoding.ErrStaleChunk) {
			r.logger.Debug("Discarding chunk of ended session", slog.String("session_id", session.String()))
			return
		}
		if err != nil {
			r.metrics.RecordEncodeFailure()
			r.logger.Warn("Failed to encode chunk", slog.String("error", err.Error()))
			return
		}
		r.metrics.RecordChunkEncoded(accumulated.Size())

		state, err := r.capture.State(ctx)
		if err != nil || state != capture.StateRecording || !r.isCurrent(session) {
			return
		}

		result, err := r.runStrategy(ctx, metrics.KindInterim, accumulated)
		if err != nil {
			r.logger.Warn("Interim transcription failed", slog.String("error", err.Error()))
			return
		}
		if result.Text == nil || *result.Text == "" {
			return
		}
		if !r.publishText(session, *result.Text) {
			r.logger.Debug("Discarding stale interim transcript", slog.String("session_id", session.String()))
		}
	}
}
