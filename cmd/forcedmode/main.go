// Forcedmode is the command-line client for a forcedmode server.
//
// It triggers orchestrations and shows their steps as they happen, reports
// device status and run history, follows the device live, and finds servers
// on the local network over mDNS.
//
// Usage:
//
//	forcedmode [command] [flags]
//
// The server address comes from --server, then FORCEDMODE_SERVER, then
// http://127.0.0.1:8080.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/forcedmode/internal/client"
	"github.com/muurk/forcedmode/internal/logging"
	"github.com/muurk/forcedmode/internal/version"
)

// Exit codes distinguish the outcomes scripts care about.
const (
	exitError      = 1
	exitBusy       = 2
	exitTransition = 3
)

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var r reported
	if !errors.As(err, &r) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}

	switch {
	case client.IsBusy(err):
		os.Exit(exitBusy)
	case client.IsTransitionFailure(err):
		os.Exit(exitTransition)
	default:
		os.Exit(exitError)
	}
}

// reported wraps an error whose details were already shown to the user.
type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

var (
	serverURL string
	timeout   time.Duration
	jsonOut   bool
)

var rootCmd = &cobra.Command{
	Use:   "forcedmode",
	Short: "Forced-mode device client",
	Long: `Client for a forcedmode server.

Trigger an orchestration with 'run', check the device with 'status', follow
it live with 'watch' and look back with 'history'. 'discover' finds servers
that advertise themselves on the local network.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.InitializeFromEnv()
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaultServer := os.Getenv(client.EnvServer)
	if defaultServer == "" {
		defaultServer = client.DefaultServer
	}
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer, "Server URL (env "+client.EnvServer+")")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", client.DefaultTimeout, "Per-request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print JSON instead of styled output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	c := client.New(serverURL)
	c.SetTimeout(timeout)
	return c
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forcedmode %s\n", version.Full())
	},
}
