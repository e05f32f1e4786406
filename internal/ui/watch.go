package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/forcedmode/internal/api"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/orchestrate"
)

// EventMsg delivers one event from the server's stream to the watch model.
type EventMsg struct{ Event api.Event }

// StreamClosedMsg tells the watch model the event stream ended.
type StreamClosedMsg struct{ Err error }

// WatchModel is the Bubble Tea model behind `forcedmode watch`. The caller
// feeds it EventMsg and StreamClosedMsg with tea.Program.Send.
type WatchModel struct {
	server  string
	status  api.DeviceStatus
	spinner spinner.Model

	steps   []orchestrate.Step
	lastRun *history.Run
	runs    int
	busy    int
	updated time.Time

	err      error
	width    int
	quitting bool
}

// NewWatchModel starts from the status fetched before subscribing.
func NewWatchModel(server string, status api.DeviceStatus) *WatchModel {
	return &WatchModel{
		server: server,
		status: status,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(WarningColor)),
		),
		updated: time.Now(),
		width:   GetTerminalWidth(),
	}
}

func (m *WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case EventMsg:
		m.apply(msg.Event)

	case StreamClosedMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *WatchModel) apply(ev api.Event) {
	m.updated = time.Now()
	switch ev.Type {
	case api.EventStep:
		if ev.Step == nil {
			return
		}
		if ev.Step.Index == 1 {
			m.steps = m.steps[:0]
		}
		m.steps = append(m.steps, *ev.Step)
		m.status.Available = false
		m.status.State = ev.Step.State
	case api.EventRun:
		m.runs++
		m.lastRun = ev.Run
		m.status.Available = true
		m.status.State = "standby"
	case api.EventBusy:
		m.busy++
	}
	if ev.DeviceID != "" {
		m.status.DeviceID = ev.DeviceID
	}
}

// Status returns the device status as last seen.
func (m *WatchModel) Status() api.DeviceStatus {
	return m.status
}

// Err returns the error that closed the stream, if any.
func (m *WatchModel) Err() error {
	return m.err
}

func (m *WatchModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(NewHeader("Watch", "forcedmode watch",
		Param{Key: "Server", Value: m.server},
		Param{Key: "Device", Value: m.status.DeviceID},
	).SetWidth(m.width).Render())
	b.WriteString("\n\n")

	state := StateStyle(m.status.State, m.status.Available).Render(strings.ToUpper(m.status.State))
	if m.status.Available {
		b.WriteString(fmt.Sprintf("  %s %s  %s\n", StepMarkerComplete, state, StepNoteStyle.Render("available")))
	} else {
		b.WriteString(fmt.Sprintf("  %s %s  %s\n", m.spinner.View(), state, StepNoteStyle.Render("in use")))
	}
	b.WriteString("\n")

	if len(m.steps) > 0 {
		p := NewProgress("", orchestrate.Steps...).SetWidth(m.width)
		for _, st := range m.steps {
			if st.Failed() {
				p.FailStep(st.Index, st.Error)
			} else {
				p.CompleteStep(st.Index, st.Elapsed.Round(time.Millisecond).String())
			}
		}
		p.ShowBar = false
		b.WriteString(p.Render())
		b.WriteString("\n\n")
	}

	if m.lastRun != nil {
		outcome := m.lastRun.Outcome
		switch outcome {
		case history.OutcomeOK:
			outcome = StepCompleteStyle.Render(outcome)
		case history.OutcomeFailed, history.OutcomeError:
			outcome = ErrorTitleStyle.Render(outcome)
		}
		b.WriteString(fmt.Sprintf("  Last run  %s  %s  %dms\n", m.lastRun.ID, outcome, m.lastRun.DurationMS))
	}
	b.WriteString(StepNoteStyle.Render(fmt.Sprintf("  %d runs, %d turned away as busy, updated %s",
		m.runs, m.busy, m.updated.Format("15:04:05"))))
	b.WriteString("\n\n")
	b.WriteString(StepPendingStyle.Render("  q to quit"))
	b.WriteString("\n")

	return b.String()
}
