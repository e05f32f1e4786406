package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// RunnerConfig holds configuration for one command execution
type RunnerConfig struct {
	Title     string    // Command title (e.g., "Orchestrate")
	Command   string    // Full command (e.g., "forcedmode run")
	Params    []Param   // Parameters to display in header
	StepNames []string  // Names for each step, in order
	Output    io.Writer // Output writer (default: os.Stdout)

	// Hint returns troubleshooting text for a failure. Bullet lines become
	// the tips of the failure box.
	Hint func(error) string
	// IsWarning picks the warning box instead of the failure box.
	IsWarning func(error) bool
}

// Runner manages the header → progress → result flow of a command and hands
// the operation a callback for reporting steps.
type Runner struct {
	config    RunnerConfig
	header    *Header
	progress  *Progress
	output    io.Writer
	startTime time.Time
	width     int
	overwrite bool
}

// NewRunner creates a new runner
func NewRunner(config RunnerConfig) *Runner {
	overwrite := false
	if config.Output == nil {
		config.Output = os.Stdout
		overwrite = IsTerminal()
	}

	width := GetTerminalWidth()
	header := NewHeader(config.Title, config.Command, config.Params...).SetWidth(width)

	var prog *Progress
	if len(config.StepNames) > 0 {
		prog = NewProgress("", config.StepNames...).SetWidth(width)
	}

	return &Runner{
		config:    config,
		header:    header,
		progress:  prog,
		output:    config.Output,
		width:     width,
		overwrite: overwrite,
	}
}

// Operation is the work a Runner wraps. It reports steps through onStep and
// returns the details for the success box.
type Operation func(ctx context.Context, onStep StepCallback) ([]Param, error)

// Run prints the header, executes op and prints the result box.
func (r *Runner) Run(ctx context.Context, op Operation) error {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	details, err := op(ctx, r.stepCallback())
	duration := time.Since(r.startTime)

	if err != nil {
		r.printFailure(err, duration)
	} else {
		r.printSuccess(details, duration)
	}
	return err
}

// Notice prints a highlighted one-line message, e.g. while waiting to retry.
func (r *Runner) Notice(message, hint string) {
	style := lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Bold(true).
		PaddingLeft(2)
	hintStyle := lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	line := style.Render("⏳ " + message)
	if hint != "" {
		line += " " + hintStyle.Render("("+hint+")")
	}
	_, _ = fmt.Fprintln(r.output, line)
}

// Progress returns the step list, or nil when the runner has no steps.
func (r *Runner) Progress() *Progress {
	return r.progress
}

func (r *Runner) stepCallback() StepCallback {
	return func(stepNumber int, status StepStatus, message string) {
		if r.progress == nil || stepNumber < 1 || stepNumber > len(r.progress.Steps) {
			return
		}
		r.progress.UpdateStep(stepNumber, status, message)
		line := r.progress.RenderStep(r.progress.Steps[stepNumber-1])

		switch status {
		case StepRunning:
			// Overwritten when the step finishes.
			if r.overwrite {
				_, _ = fmt.Fprint(r.output, line+"\r")
			}
		default:
			_, _ = fmt.Fprintln(r.output, line)
		}
	}
}

func (r *Runner) printSuccess(details []Param, duration time.Duration) {
	_, _ = fmt.Fprintln(r.output)

	details = append(details, Param{Key: "Duration", Value: duration.Round(time.Millisecond).String()})
	result := NewSuccessResult(r.config.Title+" complete", details...).SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())
}

func (r *Runner) printFailure(err error, duration time.Duration) {
	_, _ = fmt.Fprintln(r.output)

	var tips []string
	if r.config.Hint != nil {
		tips = SplitHint(r.config.Hint(err))
	}

	var result *Result
	if r.config.IsWarning != nil && r.config.IsWarning(err) {
		result = NewWarningResult(r.config.Title+" not started", tips,
			Param{Key: "Reason", Value: err.Error()},
			Param{Key: "Waited", Value: duration.Round(time.Millisecond).String()},
		)
	} else {
		result = NewFailureResult(r.config.Title+" failed", err, tips)
	}
	_, _ = fmt.Fprintln(r.output, result.SetWidth(r.width).Render())
}
