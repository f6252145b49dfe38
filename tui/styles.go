// ABOUTME: Defines lipgloss style constants for the TUI layout panels, run phases, and log formatting.
// ABOUTME: Provides StyleForOutcome to map a finished run's outcome to its banner style.
package tui

import (
	"github.com/2389-research/storyteller/reducer"
	"github.com/charmbracelet/lipgloss"
)

var (
	// Panel borders
	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("99"))

	// Title styling
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("141"))

	// Phase colors
	IdleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RunningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	CompletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	FailedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	// Log event colors
	LogEventStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	LogSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	LogMutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	// Progress and tool
	ProgressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	ToolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("213")).Italic(true)

	// Status bar
	StatusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("236")).
			Foreground(lipgloss.Color("252")).
			Padding(0, 1)

	HelpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// StyleForOutcome returns the banner style for a run outcome.
func StyleForOutcome(o reducer.Outcome) lipgloss.Style {
	switch o {
	case reducer.OutcomeCompleted:
		return CompletedStyle
	case reducer.OutcomeTruncated, reducer.OutcomeFailedToStart:
		return FailedStyle
	default:
		return IdleStyle
	}
}

// StyleForPhase returns the status bar style for a run phase.
func StyleForPhase(p reducer.Phase) lipgloss.Style {
	switch p {
	case reducer.PhaseRunning:
		return RunningStyle
	case reducer.PhaseFinished:
		return CompletedStyle
	default:
		return IdleStyle
	}
}
