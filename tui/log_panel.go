// ABOUTME: Scrollable story viewer panel built on the bubbles viewport component.
// ABOUTME: Shows the event log, the current tool, and the latest progress text from a reducer State.
package tui

import (
	"strings"

	"github.com/2389-research/storyteller/engine"
	"github.com/2389-research/storyteller/reducer"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const waitingText = "I'm waiting for you to generate a story above..."

// LogPanelModel renders the run's state into a scrollable viewport.
type LogPanelModel struct {
	viewport viewport.Model
	entries  int
	width    int
	height   int
}

// NewLogPanelModel creates an empty viewer.
func NewLogPanelModel() LogPanelModel {
	return LogPanelModel{viewport: viewport.New(80, 10)}
}

// Len returns the number of event log entries shown.
func (m LogPanelModel) Len() int {
	return m.entries
}

// SetSize sets the available dimensions and updates the viewport.
func (m *LogPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// Reserve space for the border (2 lines top/bottom) and title (1 line)
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-3, 1)
}

// Sync rebuilds the viewport content from s and scrolls to the bottom.
func (m *LogPanelModel) Sync(s *reducer.State) {
	m.entries = len(s.Events)
	m.viewport.SetContent(renderState(s))
	m.viewport.GotoBottom()
}

// Update forwards scroll keys to the viewport.
func (m LogPanelModel) Update(msg tea.Msg) (LogPanelModel, tea.Cmd) {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the panel.
func (m LogPanelModel) View() string {
	rendered := TitleStyle.Render("AI STORYTELLER") + "\n" + m.viewport.View()
	return BorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(rendered)
}

// renderState lays out the viewer oldest-first: log, tool, progress.
func renderState(s *reducer.State) string {
	var lines []string
	if s.Phase == reducer.PhaseRunning {
		lines = append(lines, RunningStyle.Render("--- [AI Storyteller Has Started] ---"))
	}
	for _, f := range s.Events {
		lines = append(lines, formatEntry(f))
	}
	if s.CurrentTool != "" {
		lines = append(lines, "", ToolStyle.Render("--- [Current Tool] --- "+s.CurrentTool), "")
	}
	if s.Phase == reducer.PhaseIdle {
		lines = append(lines, IdleStyle.Render(waitingText))
	}
	lines = append(lines, ProgressStyle.Render(">> "+s.ProgressText))
	return strings.Join(lines, "\n")
}

// formatEntry formats a single event log entry.
func formatEntry(f engine.Frame) string {
	return eventStyle(f.Kind()).Render(">> " + reducer.Describe(f))
}

// eventStyle returns the appropriate lipgloss style for a frame kind.
func eventStyle(kind engine.FrameKind) lipgloss.Style {
	switch kind {
	case engine.KindRunStart, engine.KindCallStart:
		return LogEventStyle
	case engine.KindCallFinish, engine.KindRunFinish:
		return LogSuccessStyle
	default:
		return LogMutedStyle
	}
}
