// Package recorder drives the recording lifecycle: it acquires the microphone
// stream, runs the capture session, encodes the result and hands it to the
// transcription strategy.
//
// Commands (StartRecording, PauseRecording, StopRecording, Transcribe) are
// serialized and never return errors; failures are logged and leave the
// recorder in a state from which the next command can proceed. Observers read
// State or register an OnChange hook.
//
// Phases:
//
//	idle -> recording <-> paused
//	recording/paused -> stopping -> (transcribing) -> idle
//
// With NonStop set, a stop timeout is armed whenever the speaker falls silent
// and cancelled when speech resumes; its firing is equivalent to
// StopRecording.
package recorder
