// ABOUTME: Bridge connecting the relay client to the Bubble Tea message loop.
// ABOUTME: tea.Cmd factories start a run, pull one frame at a time from the stream, and tick.
package tui

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/reducer"
	tea "github.com/charmbracelet/bubbletea"
)

// Starter opens a generation stream. *reducer.Client satisfies it.
type Starter interface {
	Start(ctx context.Context, req reducer.GenerationRequest) (io.ReadCloser, error)
}

// StartRunCmd returns a tea.Cmd that posts the request and reports whether
// streaming started. The context is cancelled when the user quits.
func StartRunCmd(ctx context.Context, starter Starter, run int, req reducer.GenerationRequest) tea.Cmd {
	return func() tea.Msg {
		body, err := starter.Start(ctx, req)
		if err != nil {
			return StartFailedMsg{Run: run, Err: err}
		}
		return StreamStartedMsg{Run: run, Body: body, Frames: reducer.NewFrameReader(body)}
	}
}

// NextFrameCmd returns a tea.Cmd that blocks until the next well-formed
// frame arrives or the stream ends. Malformed payloads are logged and skipped.
func NextFrameCmd(run int, frames *reducer.FrameReader) tea.Cmd {
	return func() tea.Msg {
		for {
			payload, err := frames.Next()
			if errors.Is(err, io.EOF) {
				return StreamEndedMsg{Run: run}
			}
			if err != nil {
				return StreamEndedMsg{Run: run, Err: err}
			}
			frame, err := engine.DecodeFrame([]byte(payload))
			if err != nil {
				log.Printf("component=tui action=skip_frame err=%v", err)
				continue
			}
			return FrameMsg{Run: run, Frame: frame}
		}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
