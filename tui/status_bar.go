// ABOUTME: Implements a single-line status bar for the bottom of the TUI showing run progress.
// ABOUTME: Displays run phase, elapsed time, requested pages, and the currently running tool.
package tui

import (
	"fmt"
	"time"

	"github.com/2389-research/storyteller/reducer"
	"github.com/charmbracelet/lipgloss"
)

// StatusBarModel displays run status in a single line.
type StatusBarModel struct {
	phase     reducer.Phase
	startTime time.Time
	endTime   time.Time
	pages     int
	tool      string
	width     int
}

// NewStatusBarModel creates a status bar for an idle client.
func NewStatusBarModel() StatusBarModel {
	return StatusBarModel{}
}

// Start records the run start time.
func (m *StatusBarModel) Start(pages int) {
	m.startTime = time.Now()
	m.endTime = time.Time{}
	m.pages = pages
}

// Stop freezes the elapsed time.
func (m *StatusBarModel) Stop() {
	if !m.startTime.IsZero() && m.endTime.IsZero() {
		m.endTime = time.Now()
	}
}

// SetState copies the phase and tool label from s.
func (m *StatusBarModel) SetState(s *reducer.State) {
	m.phase = s.Phase
	m.tool = s.CurrentTool
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the run time so far, or zero if no run started.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	if !m.endTime.IsZero() {
		return m.endTime.Sub(m.startTime)
	}
	return time.Since(m.startTime)
}

// formatElapsed formats a duration as a human-readable string.
// Durations under a minute show as seconds (e.g. "12s").
// Durations of a minute or more show as minutes and seconds (e.g. "2m30s").
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) - minutes*60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}

// View renders the status bar as a single styled line.
func (m StatusBarModel) View() string {
	tool := m.tool
	if tool == "" {
		tool = "none"
	}

	content := fmt.Sprintf("%s | Elapsed: %s | Pages: %d | Tool: %s",
		StyleForPhase(m.phase).Render(m.phase.String()), formatElapsed(m.Elapsed()), m.pages, tool)

	style := StatusBarStyle.Width(m.width)

	return lipgloss.PlaceHorizontal(m.width, lipgloss.Left, style.Render(content))
}
