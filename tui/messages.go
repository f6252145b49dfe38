// ABOUTME: Bubble Tea message types used in the TUI message loop.
// ABOUTME: Each type carries one step of a generation run, tagged with the run it belongs to.
package tui

import (
	"io"
	"time"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/reducer"
)

// StreamStartedMsg signals that the relay accepted the request and is streaming.
type StreamStartedMsg struct {
	Run    int
	Body   io.Closer
	Frames *reducer.FrameReader
}

// StartFailedMsg signals that the relay never started streaming.
type StartFailedMsg struct {
	Run int
	Err error
}

// FrameMsg carries one decoded engine frame.
type FrameMsg struct {
	Run   int
	Frame engine.Frame
}

// StreamEndedMsg signals the end of the stream. Err is nil at a clean EOF.
type StreamEndedMsg struct {
	Run int
	Err error
}

// TickMsg is sent periodically to update the elapsed time.
type TickMsg struct {
	Time time.Time
}
