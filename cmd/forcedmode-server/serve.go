package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/forcedmode/internal/config"
	"github.com/muurk/forcedmode/internal/discovery"
	"github.com/muurk/forcedmode/internal/hardware"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/logging"
	"github.com/muurk/forcedmode/internal/metrics"
	"github.com/muurk/forcedmode/internal/mode"
	"github.com/muurk/forcedmode/internal/server"
	"github.com/muurk/forcedmode/internal/slot"
	"github.com/muurk/forcedmode/internal/version"
)

// Serve command flags. Flags that are set override the config file.
var (
	host         string
	port         int
	certPath     string
	keyPath      string
	logLevel     string
	deviceID     string
	operateDelay time.Duration
	historyPath  string
	noHistory    bool
	noMetrics    bool
	mdns         bool
	mdnsInstance string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Start the server with one mock device in standby.

Settings come from the config file (see 'forcedmode-server config'), then
from flags. Run history is kept in SQLite next to the config file unless
--no-history is given. Prometheus metrics are served on /metrics unless
--no-metrics is given.

With --mdns the server advertises itself as _forcedmode._tcp so that
'forcedmode discover' can find it.`,
	Example: `  # Listen on the default 127.0.0.1:8080
  forcedmode-server serve

  # Listen on all interfaces with a fast device and debug logs
  forcedmode-server serve --host 0.0.0.0 --operate-delay 200ms --log-level debug

  # Serve over TLS and advertise on the LAN
  forcedmode-server serve --cert cert.pem --key key.pem --mdns`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&host, "host", config.DefaultHost, "Listen address (empty = all interfaces)")
	f.IntVar(&port, "port", config.DefaultPort, "Listen port")
	f.StringVar(&certPath, "cert", "", "Path to TLS certificate file")
	f.StringVar(&keyPath, "key", "", "Path to TLS private key file")
	f.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error; empty = silent)")
	f.StringVar(&deviceID, "device-id", "", "Device identity (default: random uuid)")
	f.DurationVar(&operateDelay, "operate-delay", config.DefaultOperateDelay, "Time the device takes to enter operating mode")
	f.StringVar(&historyPath, "history", "", "Run history database path")
	f.BoolVar(&noHistory, "no-history", false, "Do not record run history")
	f.BoolVar(&noMetrics, "no-metrics", false, "Do not serve /metrics")
	f.BoolVar(&mdns, "mdns", false, "Advertise the server over mDNS")
	f.StringVar(&mdnsInstance, "mdns-instance", config.DefaultMDNSInstance, "mDNS instance name")
}

// loadConfig reads the config file and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Listen.Host = host
	}
	if flags.Changed("port") {
		cfg.Listen.Port = port
	}
	if flags.Changed("cert") {
		cfg.TLS.Cert = certPath
	}
	if flags.Changed("key") {
		cfg.TLS.Key = keyPath
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("device-id") {
		cfg.Device.ID = deviceID
	}
	if flags.Changed("operate-delay") {
		cfg.Device.OperateDelay = config.Duration(operateDelay)
	}
	if flags.Changed("history") {
		cfg.History.Path = historyPath
	}
	if noHistory {
		cfg.History.Path = ""
	}
	if noMetrics {
		cfg.Metrics.Enabled = false
	}
	if flags.Changed("mdns") {
		cfg.MDNS.Enabled = mdns
	}
	if flags.Changed("mdns-instance") {
		cfg.MDNS.Instance = mdnsInstance
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	drv := hardware.NewMock(cfg.Device.ID, time.Duration(cfg.Device.OperateDelay))
	sl := slot.New(mode.New[mode.Driver](drv))

	var store *history.Store
	if cfg.History.Path != "" {
		store, err = history.Open(cmd.Context(), cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				logging.Warn("Failed to close run history", zap.Error(err))
			}
		}()
	}

	srv, err := server.New(&server.Config{
		Host:     cfg.Listen.Host,
		Port:     cfg.Listen.Port,
		CertPath: cfg.TLS.Cert,
		KeyPath:  cfg.TLS.Key,
	}, sl, store, metrics.New(cfg.Metrics.Enabled))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if cfg.MDNS.Enabled {
		adv, err := discovery.Advertise(cfg.MDNS.Instance, cfg.Listen.Port, drv.ID(), version.Version, cfg.TLS.Enabled())
		if err != nil {
			// The server is still reachable by address.
			logging.Warn("mDNS advertisement failed", zap.Error(err))
		} else {
			defer adv.Shutdown()
		}
	}

	scheme := "http"
	if cfg.TLS.Enabled() {
		scheme = "https"
	}
	fmt.Fprintf(os.Stderr, "forcedmode-server %s serving device %s on %s://%s\n",
		version.Version, drv.ID(), scheme, cfg.Listen.Addr())

	return srv.Start()
}
