package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/forcedmode/internal/api"
	"github.com/muurk/forcedmode/internal/client"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/logging"
	"github.com/muurk/forcedmode/internal/orchestrate"
	"github.com/muurk/forcedmode/internal/ui"
)

var (
	retries    int
	retryDelay time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one orchestration",
	Long: `Ask the server to take the device through configure and operate, and
show each step as the server reports it.

If the device is busy the run is not started. With --retries the client
waits and tries again, doubling the wait each time. Only failures that show
no run was started are retried (busy, server not reachable); a timeout is
not, since the device may already have been driven.

Exit status is 2 when the device stayed busy and 3 when a transition failed.`,
	Example: `  # Run once
  forcedmode run

  # Keep trying for a while if someone else has the device
  forcedmode run --retries 5 --retry-delay 1s

  # Machine-readable result
  forcedmode run --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		c := newClient()
		c.SetRetry(retries, retryDelay)

		if jsonOut {
			return runJSON(ctx, c, os.Stdout)
		}
		return runWithProgress(ctx, c, nil)
	},
}

func init() {
	runCmd.Flags().IntVar(&retries, "retries", 0, "Retries while the device is busy or the server unreachable")
	runCmd.Flags().DurationVar(&retryDelay, "retry-delay", client.DefaultRetryDelay, "Initial wait between retries")
}

func runJSON(ctx context.Context, c *client.Client, out io.Writer) error {
	run, err := c.Orchestrate(ctx, nil)
	if run == nil {
		run = runFromError(err)
	}
	if run != nil {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(run); encErr != nil {
			return encErr
		}
	}
	return err
}

// runFromError returns the run record a 409 or 418 response carried.
func runFromError(err error) *history.Run {
	var cErr *client.Error
	if errors.As(err, &cErr) {
		return cErr.Run
	}
	return nil
}

type runResult struct {
	run *history.Run
	err error
}

// runWithProgress triggers a run and renders its steps. Steps come from the
// event stream while the run is in flight; any the stream has not delivered
// when the response arrives are filled in from the run record.
func runWithProgress(ctx context.Context, c *client.Client, out io.Writer) error {
	requestID := uuid.New().String()
	ctx = client.WithRequestID(ctx, requestID)

	runner := ui.NewRunner(ui.RunnerConfig{
		Title:   "Orchestrate",
		Command: "forcedmode run",
		Params: []ui.Param{
			{Key: "Server", Value: c.BaseURL},
			{Key: "Request", Value: requestID},
			{Key: "Retries", Value: strconv.Itoa(c.MaxRetries)},
		},
		StepNames: orchestrate.Steps,
		Output:    out,
		Hint:      client.GetTroubleshootingHint,
		IsWarning: client.IsBusy,
	})

	err := runner.Run(ctx, func(ctx context.Context, onStep ui.StepCallback) ([]ui.Param, error) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		events := subscribe(ctx, c)

		notices := make(chan string)
		results := make(chan runResult, 1)
		go func() {
			run, err := c.Orchestrate(ctx, func(attempt int, wait time.Duration, err error) {
				select {
				case notices <- fmt.Sprintf("%s, retrying in %s (%d/%d)", client.GetShortErrorMessage(err), wait, attempt, c.MaxRetries):
				case <-ctx.Done():
				}
			})
			results <- runResult{run: run, err: err}
		}()

		shown := make(map[int]bool)
		show := func(st orchestrate.Step) {
			if shown[st.Index] {
				return
			}
			shown[st.Index] = true
			if st.Failed() {
				onStep(st.Index, ui.StepFailed, st.Error)
			} else {
				onStep(st.Index, ui.StepComplete, st.Elapsed.Round(time.Millisecond).String())
			}
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Type == api.EventStep && ev.RequestID == requestID && ev.Step != nil {
					show(*ev.Step)
				}
			case msg := <-notices:
				runner.Notice(msg, "")
			case res := <-results:
				run := res.run
				if run == nil {
					run = runFromError(res.err)
				}
				if run != nil {
					for _, st := range run.Steps {
						show(st)
					}
				}
				if res.err != nil {
					return nil, res.err
				}
				return []ui.Param{
					{Key: "Run", Value: run.ID},
					{Key: "Device", Value: run.DeviceID},
					{Key: "Steps", Value: strconv.Itoa(len(run.Steps))},
				}, nil
			}
		}
	})
	if err != nil {
		return reported{err}
	}
	return nil
}

// subscribe streams events until ctx ends. Without a stream the run still
// works; its steps are shown from the run record at the end.
func subscribe(ctx context.Context, c *client.Client) <-chan api.Event {
	out := make(chan api.Event, 16)

	stream, err := c.Events(ctx)
	if err != nil {
		logging.Debug("Event stream unavailable", zap.Error(err))
		close(out)
		return out
	}

	go func() {
		<-ctx.Done()
		_ = stream.Close()
	}()
	go func() {
		defer close(out)
		for {
			ev, err := stream.Next()
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
