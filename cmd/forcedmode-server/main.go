// Forcedmode-server owns one device and serves its orchestration over HTTP.
//
// The device is a mock driver that takes a configurable time to come up in
// operating mode. Requests that arrive while it is held by another request
// are turned away with 409 instead of queueing.
//
// Usage:
//
//	forcedmode-server serve [flags]
//
// See 'forcedmode-server serve --help' for available options.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/forcedmode/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "forcedmode-server",
	Short: "Forced-mode device server",
	Long: `Serves a single device through its Standby, Configure and Operate modes.

Each orchestration takes the device, walks it through configure and operate,
returning to standby in between, and puts it back. Only one orchestration
holds the device at a time; concurrent requests get 409 Conflict.

Use the separate 'forcedmode' client to trigger runs and watch the device.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// configPath is shared by every subcommand.
var configPath string

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.config/forcedmode/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("forcedmode-server %s\n", version.Full())
	},
}
