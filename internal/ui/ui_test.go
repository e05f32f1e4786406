package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/forcedmode/internal/api"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/orchestrate"
)

func TestProgressUpdateStep(t *testing.T) {
	p := NewProgress("", orchestrate.Steps...)
	if p.Total != 4 {
		t.Fatalf("Expected 4 steps, got %d", p.Total)
	}

	p.StartStep(1, "")
	if p.Current != 1 {
		t.Errorf("Expected current step 1, got %d", p.Current)
	}
	p.CompleteStep(1, "5ms")
	p.CompleteStep(2, "")
	if p.Percent != 0.5 {
		t.Errorf("Expected 50%% progress, got %v", p.Percent)
	}

	p.FailStep(3, "bus fault")
	p.SkipRemaining()
	if p.Steps[3].Status != StepSkipped {
		t.Errorf("Expected step 4 skipped, got %v", p.Steps[3].Status)
	}
	if p.Percent != 0.5 {
		t.Errorf("Expected failed step not to count, got %v", p.Percent)
	}

	// Out of range updates are ignored.
	p.UpdateStep(0, StepComplete, "")
	p.UpdateStep(9, StepComplete, "")

	out := p.Render()
	for _, want := range []string{"configure", "operate.standby", "bus fault", "[3/4]"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected render to contain %q", want)
		}
	}
}

func TestResultRender(t *testing.T) {
	ok := NewSuccessResult("Orchestration complete", Param{Key: "Run", Value: "abc"}).SetWidth(80).Render()
	if !strings.Contains(ok, "SUCCESS") || !strings.Contains(ok, "abc") {
		t.Errorf("Unexpected success box:\n%s", ok)
	}

	failed := NewFailureResult("Orchestration failed", errors.New("operate transition failed"), []string{"check the log"}).SetWidth(80).Render()
	for _, want := range []string{"FAILED", "operate transition failed", "Troubleshooting:", "check the log"} {
		if !strings.Contains(failed, want) {
			t.Errorf("Expected failure box to contain %q", want)
		}
	}

	warn := NewWarningResult("Orchestration not started", nil, Param{Key: "Reason", Value: "busy"}).Render()
	if !strings.Contains(warn, "WARNING") {
		t.Errorf("Unexpected warning box:\n%s", warn)
	}
}

func TestSplitHint(t *testing.T) {
	hint := "The device is in use by another request.\nTroubleshooting:\n  • Wait\n  • Use --retries"
	got := SplitHint(hint)
	want := []string{"The device is in use by another request.", "Wait", "Use --retries"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected tip %d %q, got %q", i, want[i], got[i])
		}
	}
}

func TestRunnerSuccess(t *testing.T) {
	var buf bytes.Buffer
	r := NewRunner(RunnerConfig{
		Title:     "Orchestrate",
		Command:   "forcedmode run",
		Params:    []Param{{Key: "Server", Value: "http://127.0.0.1:8080"}},
		StepNames: orchestrate.Steps,
		Output:    &buf,
	})

	err := r.Run(context.Background(), func(ctx context.Context, onStep StepCallback) ([]Param, error) {
		for i := 1; i <= 4; i++ {
			onStep(i, StepRunning, "")
			onStep(i, StepComplete, "1ms")
		}
		return []Param{{Key: "Run", Value: "run-1"}}, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ORCHESTRATE", "forcedmode run", "operate.standby", "SUCCESS", "run-1", "Duration"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q", want)
		}
	}
	if strings.Contains(out, "\r") {
		t.Error("Expected no carriage returns when not writing to a terminal")
	}
}

func TestRunnerFailureAndWarning(t *testing.T) {
	busy := errors.New("device busy")
	cfg := RunnerConfig{
		Title:     "Orchestrate",
		StepNames: orchestrate.Steps,
		Hint:      func(error) string { return "Troubleshooting:\n  • try later" },
		IsWarning: func(err error) bool { return errors.Is(err, busy) },
	}

	var buf bytes.Buffer
	cfg.Output = &buf
	err := NewRunner(cfg).Run(context.Background(), func(ctx context.Context, onStep StepCallback) ([]Param, error) {
		return nil, busy
	})
	if !errors.Is(err, busy) {
		t.Fatalf("Expected busy error, got %v", err)
	}
	if !strings.Contains(buf.String(), "WARNING") || !strings.Contains(buf.String(), "try later") {
		t.Errorf("Expected warning box with tip, got:\n%s", buf.String())
	}

	buf.Reset()
	_ = NewRunner(cfg).Run(context.Background(), func(ctx context.Context, onStep StepCallback) ([]Param, error) {
		onStep(1, StepFailed, "no config")
		return nil, errors.New("configure transition failed")
	})
	if !strings.Contains(buf.String(), "FAILED") || !strings.Contains(buf.String(), "no config") {
		t.Errorf("Expected failure box, got:\n%s", buf.String())
	}
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"ID", "OUTCOME"}, [][]string{{"r1", "ok"}, {"r2", "busy"}})
	for _, want := range []string{"ID", "OUTCOME", "r1", "busy"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected table to contain %q", want)
		}
	}
}

func TestWatchModelFollowsEvents(t *testing.T) {
	m := NewWatchModel("http://127.0.0.1:8080", api.DeviceStatus{DeviceID: "dev-1", Available: true, State: "standby"})

	step := func(i int, name, state string) EventMsg {
		return EventMsg{Event: api.Event{Type: api.EventStep, DeviceID: "dev-1",
			Step: &orchestrate.Step{Index: i, Transition: name, State: state, Elapsed: time.Millisecond}}}
	}

	m.Update(step(1, "configure", "configure"))
	if m.Status().Available {
		t.Error("Expected device in use after a step event")
	}
	if m.Status().State != "configure" {
		t.Errorf("Expected state configure, got %s", m.Status().State)
	}
	m.Update(step(2, "configure.standby", "standby"))
	if len(m.steps) != 2 {
		t.Errorf("Expected 2 steps, got %d", len(m.steps))
	}
	if !strings.Contains(m.View(), "(1ms)") {
		t.Error("Expected view to show step timings")
	}

	m.Update(EventMsg{Event: api.Event{Type: api.EventRun, Run: &history.Run{ID: "run-1", Outcome: history.OutcomeOK}}})
	if !m.Status().Available || m.Status().State != "standby" {
		t.Errorf("Expected device available in standby, got %+v", m.Status())
	}
	m.Update(EventMsg{Event: api.Event{Type: api.EventBusy}})

	view := m.View()
	for _, want := range []string{"run-1", "1 runs, 1 turned away"} {
		if !strings.Contains(view, want) {
			t.Errorf("Expected view to contain %q", want)
		}
	}

	// A new run starts a fresh step list.
	m.Update(step(1, "configure", "configure"))
	if len(m.steps) != 1 {
		t.Errorf("Expected previous run's steps to be cleared, got %d", len(m.steps))
	}
}

func TestWatchModelQuits(t *testing.T) {
	m := NewWatchModel("s", api.DeviceStatus{})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("Expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("Expected tea.QuitMsg")
	}
	if m.View() != "" {
		t.Error("Expected empty view after quitting")
	}

	closed := errors.New("stream closed")
	m = NewWatchModel("s", api.DeviceStatus{})
	m.Update(StreamClosedMsg{Err: closed})
	if !errors.Is(m.Err(), closed) {
		t.Errorf("Expected stream error, got %v", m.Err())
	}
}
