package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/forcedmode/internal/client"
	"github.com/muurk/forcedmode/internal/discovery"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/ui"
)

func jsonEncoder() *json.Encoder {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc
}

func printJSON(v any) error {
	return jsonEncoder().Encode(v)
}

// failed prints err in a failure box with its troubleshooting hint.
func failed(p *ui.Printer, title string, err error) error {
	p.PrintError(title, fmt.Errorf("%s", client.GetShortErrorMessage(err)), ui.SplitHint(client.GetTroubleshootingHint(err)))
	return reported{err}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show device status",
	Long:  `Show whether the device is free and which mode it is in. Never waits for a running orchestration.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ctx := cmd.Context()

		st, err := c.Device(ctx)
		if err != nil {
			if jsonOut {
				return err
			}
			return failed(ui.NewPrinter(nil), "Status unavailable", err)
		}
		if jsonOut {
			return printJSON(st)
		}

		p := ui.NewPrinter(nil)
		p.PrintHeader("Status", "forcedmode status", ui.Param{Key: "Server", Value: c.BaseURL})

		details := []ui.Param{
			{Key: "Device", Value: st.DeviceID},
			{Key: "State", Value: st.State},
		}
		if h, err := c.Health(ctx); err == nil {
			details = append(details,
				ui.Param{Key: "Server", Value: h.Version},
				ui.Param{Key: "Uptime", Value: h.Uptime},
				ui.Param{Key: "Watchers", Value: strconv.Itoa(h.EventSubs)},
			)
		}

		if st.Available {
			p.PrintSuccess("Device available", details...)
		} else {
			p.PrintWarning("Device in use", []string{"An orchestration is running", "'forcedmode watch' shows when it finishes"}, details...)
		}
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Example: `  # Last 20 runs
  forcedmode history

  # Last 100, as JSON
  forcedmode history --limit 100 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		resp, err := c.Runs(cmd.Context(), historyLimit)
		if err != nil {
			if jsonOut {
				return err
			}
			return failed(ui.NewPrinter(nil), "History unavailable", err)
		}
		if jsonOut {
			return printJSON(resp)
		}

		p := ui.NewPrinter(nil)
		p.PrintHeader("History", "forcedmode history",
			ui.Param{Key: "Server", Value: c.BaseURL},
			ui.Param{Key: "Limit", Value: strconv.Itoa(historyLimit)},
		)
		if len(resp.Runs) == 0 {
			p.Println("  No runs recorded.")
			return nil
		}
		p.PrintTable([]string{"STARTED", "RUN", "OUTCOME", "FAILED AT", "STEPS", "DURATION"}, historyRows(resp.Runs))
		p.Println("  " + outcomeSummary(resp.Outcomes))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", history.DefaultLimit, "Number of runs to show (1-500)")
}

func historyRows(runs []history.Run) [][]string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			shortID(r.ID),
			r.Outcome,
			r.FailedTransition,
			strconv.Itoa(len(r.Steps)),
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
		})
	}
	return rows
}

// outcomeSummary renders totals in a fixed order, e.g. "ok 12 · busy 3".
func outcomeSummary(counts map[string]int) string {
	var parts []string
	for _, o := range []string{history.OutcomeOK, history.OutcomeBusy, history.OutcomeFailed, history.OutcomeError} {
		if n := counts[o]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", o, n))
		}
	}
	if len(parts) == 0 {
		return "No totals available."
	}
	return "All runs: " + strings.Join(parts, " · ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

var scanTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find forcedmode servers on the local network",
	Long: `Browse mDNS for servers started with 'forcedmode-server serve --mdns'.

Use the printed URL with --server or FORCEDMODE_SERVER.`,
	Example: `  # Scan for 5 seconds (default)
  forcedmode discover

  # Longer scan for slow networks
  forcedmode discover --scan-timeout 15s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner()
		scanner.Timeout = scanTimeout

		if !jsonOut {
			fmt.Printf("Scanning for forcedmode servers (timeout: %s)...\n\n", scanTimeout)
		}

		servers, err := scanner.Scan(cmd.Context())
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if jsonOut {
			return printJSON(servers)
		}

		p := ui.NewPrinter(nil)
		if len(servers) == 0 {
			p.PrintWarning("No servers found", []string{
				"Start the server with --mdns",
				"Check that you are on the same network segment",
				"Try a longer --scan-timeout",
			})
			return nil
		}

		rows := make([][]string, 0, len(servers))
		for _, s := range servers {
			rows = append(rows, []string{s.Instance, s.BaseURL(), s.DeviceID, s.Version})
		}
		p.PrintTable([]string{"INSTANCE", "URL", "DEVICE", "VERSION"}, rows)
		return nil
	},
}

func init() {
	discoverCmd.Flags().DurationVar(&scanTimeout, "scan-timeout", discovery.DefaultScanTimeout, "How long to listen for servers")
}
