package main

import (
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/forcedmode/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the device live",
	Long: `Show the device state and each orchestration step as it happens.

On a terminal this is a full-screen view; press q to quit. Otherwise, or
with --json, events are printed one JSON object per line.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	c := newClient()
	st, err := c.Device(ctx)
	if err != nil {
		return failed(ui.NewPrinter(nil), "Watch unavailable", err)
	}

	stream, err := c.Events(ctx)
	if err != nil {
		return failed(ui.NewPrinter(nil), "Event stream unavailable", err)
	}
	defer func() { _ = stream.Close() }()

	if jsonOut || !ui.IsTerminal() {
		go func() {
			<-ctx.Done()
			_ = stream.Close()
		}()
		enc := jsonEncoder()
		for {
			ev, err := stream.Next()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("event stream closed: %w", err)
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
	}

	model := ui.NewWatchModel(c.BaseURL, *st)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		for {
			ev, err := stream.Next()
			if err != nil {
				p.Send(ui.StreamClosedMsg{Err: err})
				return
			}
			p.Send(ui.EventMsg{Event: ev})
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := model.Err(); err != nil {
		return fmt.Errorf("event stream closed: %w", err)
	}
	return nil
}
