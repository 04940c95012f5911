package recorder

import (
	"context"

	"github.com/looplab/fsm"
)

// Phase is the lifecycle phase of the recorder
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRecording    Phase = "recording"
	PhasePaused       Phase = "paused"
	PhaseStopping     Phase = "stopping"
	PhaseTranscribing Phase = "transcribing"
)

// Phase events
const (
	eventStart      = "start"
	eventPause      = "pause"
	eventStop       = "stop"
	eventTranscribe = "transcribe"
	eventFinish     = "finish"
	eventReset      = "reset"
)

func newMachine(onEnter func(Phase)) *fsm.FSM {
	return fsm.NewFSM(
		string(PhaseIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(PhaseIdle), string(PhasePaused)}, Dst: string(PhaseRecording)},
			{Name: eventPause, Src: []string{string(PhaseRecording)}, Dst: string(PhasePaused)},
			{Name: eventStop, Src: []string{string(PhaseRecording), string(PhasePaused)}, Dst: string(PhaseStopping)},
			{Name: eventTranscribe, Src: []string{string(PhaseStopping), string(PhaseIdle)}, Dst: string(PhaseTranscribing)},
			{Name: eventFinish, Src: []string{string(PhaseStopping), string(PhaseTranscribing)}, Dst: string(PhaseIdle)},
			{Name: eventReset, Src: []string{
				string(PhaseRecording), string(PhasePaused), string(PhaseStopping), string(PhaseTranscribing),
			}, Dst: string(PhaseIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(Phase(e.Dst))
			},
		},
	)
}
