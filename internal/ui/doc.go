// Package ui provides terminal output for the forcedmode CLI.
//
// Most commands follow a "run once and exit" pattern built from three
// components rendered with Lipgloss:
//
//   - Header: command banner showing the operation and its parameters
//   - Progress: progress bar and step list
//   - Result: success, warning or failure box with troubleshooting tips
//
// A Runner strings them together for commands that report steps:
//
//	runner := ui.NewRunner(ui.RunnerConfig{
//	    Title:     "Orchestrate",
//	    Command:   "forcedmode run",
//	    Params:    []ui.Param{{Key: "Server", Value: server}},
//	    StepNames: orchestrate.Steps,
//	    Hint:      client.GetTroubleshootingHint,
//	    IsWarning: client.IsBusy,
//	})
//	err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Param, error) {
//	    onStep(1, ui.StepComplete, "12ms")
//	    return nil, nil
//	})
//
// WatchModel is the one interactive view: a Bubble Tea program that follows
// the event stream until the user quits.
//
// Logging is controlled by FORCEDMODE_LOG_LEVEL. When it is unset zap stays
// silent so the styled output is not interleaved with log lines.
package ui
