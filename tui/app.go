// ABOUTME: Top-level Bubble Tea AppModel for the storyteller terminal client.
// ABOUTME: Owns the story form and the reducer State, and routes run messages to the viewer and status bar.
package tui

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/2389-research/storyteller/reducer"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	// MinPages and MaxPages bound the page count the form can request.
	MinPages = 1
	MaxPages = 10

	defaultPages = 5
	tickInterval = 100 * time.Millisecond

	emptyStoryNotice = "Type a story idea first."
)

// AppModel is the top-level Bubble Tea model for the storyteller client.
type AppModel struct {
	input     textinput.Model
	spinner   spinner.Model
	log       LogPanelModel
	statusBar StatusBarModel

	state       reducer.State
	starter     Starter
	ctx         context.Context
	storiesPath string
	pages       int

	// run tags messages so that frames from an abandoned stream are dropped.
	run    int
	cancel context.CancelFunc
	body   io.Closer
	frames *reducer.FrameReader

	notice string // transient message shown under the form
	err    error  // why the last run failed to start or stopped early
	width  int
	height int
}

// NewAppModel creates an idle AppModel. Runs are started through starter and
// stop when ctx is cancelled.
func NewAppModel(ctx context.Context, starter Starter, storiesPath string) AppModel {
	ti := textinput.New()
	ti.Prompt = "Story> "
	ti.Placeholder = "What kind of story would you like to hear?"
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = RunningStyle

	if storiesPath == "" {
		storiesPath = reducer.DefaultStoriesPath
	}

	m := AppModel{
		input:       ti,
		spinner:     sp,
		log:         NewLogPanelModel(),
		statusBar:   NewStatusBarModel(),
		starter:     starter,
		ctx:         ctx,
		storiesPath: storiesPath,
		pages:       defaultPages,
	}
	m.log.Sync(&m.state)
	return m
}

// State returns the client state.
func (m AppModel) State() reducer.State {
	return m.state
}

// Pages returns the page count the next run will request.
func (m AppModel) Pages() int {
	return m.pages
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model. Messages from runs other than the current one
// are dropped.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Title, form, banner, status bar, and help each take one line.
		m.log.SetSize(m.width, max(m.height-5, 3))
		m.statusBar.SetWidth(m.width)
		m.log.Sync(&m.state)
		return m, nil

	case StreamStartedMsg:
		return m.handleStreamStarted(msg)

	case StartFailedMsg:
		return m.handleStartFailed(msg)

	case FrameMsg:
		return m.handleFrame(msg)

	case StreamEndedMsg:
		return m.handleStreamEnded(msg)

	case TickMsg:
		if !m.state.RunStarted() {
			return m, nil
		}
		return m, TickCmd(tickInterval)

	case spinner.TickMsg:
		if !m.state.RunStarted() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.width < 40 || m.height < 12 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x12.", m.width, m.height)
	}

	form := m.formView()
	banner := m.bannerView()
	help := HelpStyle.Render("enter: generate  up/down: pages  pgup/pgdn: scroll  esc: clear  ctrl+c: quit")

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Create your own story"))
	b.WriteString("\n")
	b.WriteString(form)
	b.WriteString("\n")
	b.WriteString(m.log.View())
	b.WriteString("\n")
	b.WriteString(banner)
	b.WriteString("\n")
	b.WriteString(m.statusBar.View())
	b.WriteString("\n")
	b.WriteString(help)
	return b.String()
}

func (m AppModel) formView() string {
	pages := fmt.Sprintf("  Pages: %d", m.pages)
	if m.state.RunStarted() {
		return m.input.View() + pages + "  " + m.spinner.View() + RunningStyle.Render("Generating...")
	}
	return m.input.View() + pages
}

func (m AppModel) bannerView() string {
	style := StyleForOutcome(m.state.Outcome)
	switch {
	case m.notice != "":
		return HelpStyle.Render(m.notice)
	case m.state.ShouldNotify():
		return style.Render(fmt.Sprintf("Story generated! Find it in %s.", m.storiesPath))
	case m.state.Outcome == reducer.OutcomeFailedToStart:
		return style.Render(fmt.Sprintf("Could not start the story: %v", m.err))
	case m.state.Outcome == reducer.OutcomeTruncated:
		msg := "The story stopped before it finished."
		if m.err != nil {
			msg = fmt.Sprintf("The story stopped before it finished: %v", m.err)
		}
		return style.Render(msg)
	}
	return ""
}

// handleKeyMsg processes app-level shortcuts and forwards the rest to the input.
func (m AppModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.stopStream()
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "up":
		if m.pages < MaxPages {
			m.pages++
		}
		return m, nil
	case "down":
		if m.pages > MinPages {
			m.pages--
		}
		return m, nil
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.log, cmd = m.log.Update(msg)
		return m, cmd
	case "esc":
		if m.state.RunStarted() {
			return m, nil
		}
		m.state.Reset()
		m.err = nil
		m.notice = ""
		m.input.Reset()
		m.log.Sync(&m.state)
		m.statusBar = NewStatusBarModel()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit starts a new run unless one is already in progress or the prompt
// is empty.
func (m AppModel) submit() (tea.Model, tea.Cmd) {
	story := strings.TrimSpace(m.input.Value())
	if story == "" && !m.state.RunStarted() {
		m.notice = emptyStoryNotice
		return m, nil
	}
	if err := m.state.Submit(); err != nil {
		m.notice = err.Error()
		return m, nil
	}
	m.stopStream()
	m.notice = ""
	m.err = nil
	m.run++

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel

	pages := m.pages
	req := reducer.GenerationRequest{
		Story: story,
		Pages: &pages,
		Path:  m.storiesPath,
	}

	m.statusBar.Start(pages)
	m.statusBar.SetState(&m.state)
	m.log.Sync(&m.state)

	return m, tea.Batch(
		StartRunCmd(ctx, m.starter, m.run, req),
		TickCmd(tickInterval),
		m.spinner.Tick,
	)
}

func (m AppModel) handleStreamStarted(msg StreamStartedMsg) (tea.Model, tea.Cmd) {
	if msg.Run != m.run {
		msg.Body.Close()
		return m, nil
	}
	if m.body != nil {
		m.body.Close()
	}
	m.body = msg.Body
	m.frames = msg.Frames
	return m, NextFrameCmd(m.run, m.frames)
}

func (m AppModel) handleStartFailed(msg StartFailedMsg) (tea.Model, tea.Cmd) {
	if msg.Run != m.run {
		return m, nil
	}
	log.Printf("component=tui action=start_failed run=%d err=%v", msg.Run, msg.Err)
	m.err = msg.Err
	m.state.StartFailed()
	m.stopStream()
	m.statusBar.Stop()
	m.statusBar.SetState(&m.state)
	m.log.Sync(&m.state)
	return m, nil
}

func (m AppModel) handleFrame(msg FrameMsg) (tea.Model, tea.Cmd) {
	if msg.Run != m.run {
		return m, nil
	}
	m.state.Apply(msg.Frame)
	if !m.state.RunStarted() {
		m.statusBar.Stop()
	}
	m.statusBar.SetState(&m.state)
	m.log.Sync(&m.state)
	return m, NextFrameCmd(m.run, m.frames)
}

func (m AppModel) handleStreamEnded(msg StreamEndedMsg) (tea.Model, tea.Cmd) {
	if msg.Run != m.run {
		return m, nil
	}
	if msg.Err != nil {
		log.Printf("component=tui action=stream_ended run=%d err=%v", msg.Run, msg.Err)
		if m.state.RunStarted() {
			m.err = msg.Err
		}
	}
	m.state.StreamEnded()
	m.stopStream()
	m.statusBar.Stop()
	m.statusBar.SetState(&m.state)
	m.log.Sync(&m.state)
	return m, nil
}

// stopStream cancels the current run's context and closes its body.
func (m *AppModel) stopStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.body != nil {
		m.body.Close()
		m.body = nil
	}
	m.frames = nil
}
