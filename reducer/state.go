// ABOUTME: Client-side run state and the reducer that folds engine frames into it.
// ABOUTME: Tracks progress text, current tool, the event log, and the idle/running/finished lifecycle.
package reducer

import (
	"errors"

	"github.com/2389-research/storyteller/engine"
)

// ErrRunInProgress is returned by Submit while a run is still running.
var ErrRunInProgress = errors.New("a story is already being generated")

// Phase is the client's run lifecycle position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseFinished
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Outcome says how a finished run ended.
type Outcome int

const (
	OutcomeNone Outcome = iota
	// OutcomeCompleted means a runFinish frame arrived.
	OutcomeCompleted
	// OutcomeTruncated means the stream ended or broke without runFinish.
	OutcomeTruncated
	// OutcomeFailedToStart means the relay never started streaming.
	OutcomeFailedToStart
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeCompleted:
		return "completed"
	case OutcomeTruncated:
		return "truncated"
	case OutcomeFailedToStart:
		return "failed_to_start"
	default:
		return "unknown"
	}
}

// State is the UI state of one client. The zero value is idle.
type State struct {
	ProgressText string
	CurrentTool  string
	// Events holds every frame without special handling, in arrival order.
	Events  []engine.Frame
	Phase   Phase
	Outcome Outcome
}

// RunStarted reports whether a run is in progress.
func (s *State) RunStarted() bool { return s.Phase == PhaseRunning }

// RunFinished returns nil before the first run, then whether the current
// run has finished.
func (s *State) RunFinished() *bool {
	if s.Phase == PhaseIdle {
		return nil
	}
	finished := s.Phase == PhaseFinished
	return &finished
}

// ShouldNotify reports whether the success notification should be shown.
func (s *State) ShouldNotify() bool {
	return s.Phase == PhaseFinished && s.Outcome == OutcomeCompleted
}

// Submit moves an idle or finished client into the running phase. Earlier
// progress and log entries stay visible until new frames replace them.
func (s *State) Submit() error {
	if s.Phase == PhaseRunning {
		return ErrRunInProgress
	}
	s.Phase = PhaseRunning
	s.Outcome = OutcomeNone
	return nil
}

// StartFailed records that the request to start streaming failed.
func (s *State) StartFailed() {
	if s.Phase != PhaseRunning {
		return
	}
	s.Phase = PhaseFinished
	s.Outcome = OutcomeFailedToStart
}

// StreamEnded records the end of the stream. A run still running at this
// point never saw runFinish and is marked truncated.
func (s *State) StreamEnded() {
	if s.Phase != PhaseRunning {
		return
	}
	s.Phase = PhaseFinished
	s.Outcome = OutcomeTruncated
}

// Reset returns the client to idle, as when the user navigates away.
func (s *State) Reset() {
	*s = State{}
}

// Apply folds one frame into the state.
func (s *State) Apply(f engine.Frame) {
	switch f := f.(type) {
	case *engine.CallProgress:
		if latest, ok := f.Latest(); ok {
			s.ProgressText = latest
		}
		s.CurrentTool = f.ToolDescription()
	case *engine.CallStart:
		s.CurrentTool = f.ToolDescription()
	case *engine.RunFinish:
		s.Phase = PhaseFinished
		s.Outcome = OutcomeCompleted
	case *engine.Unrecognized:
		s.Events = append(s.Events, f)
	}
}
