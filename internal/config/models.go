package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Version is the config file format version.
const Version = 1

// Defaults.
const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8080
	DefaultOperateDelay = 2 * time.Second
	DefaultMDNSInstance = "forcedmode"
)

// Config is the server configuration file.
type Config struct {
	Version  int           `yaml:"version"`
	Listen   ListenConfig  `yaml:"listen"`
	TLS      TLSConfig     `yaml:"tls,omitempty"`
	Device   DeviceConfig  `yaml:"device"`
	History  HistoryConfig `yaml:"history"`
	Metrics  MetricsConfig `yaml:"metrics"`
	MDNS     MDNSConfig    `yaml:"mdns"`
	LogLevel string        `yaml:"log_level,omitempty"` // debug, info, warn, error; empty is silent
}

type ListenConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (l ListenConfig) Addr() string {
	return net.JoinHostPort(l.Host, strconv.Itoa(l.Port))
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	Cert string `yaml:"cert,omitempty"`
	Key  string `yaml:"key,omitempty"`
}

// Enabled reports whether TLS is configured.
func (t TLSConfig) Enabled() bool {
	return t.Cert != "" && t.Key != ""
}

type DeviceConfig struct {
	ID           string   `yaml:"id,omitempty"` // generated at startup when empty
	OperateDelay Duration `yaml:"operate_delay"`
}

type HistoryConfig struct {
	Path string `yaml:"path"` // empty disables run history
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type MDNSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"`
}

// Duration is a time.Duration written as a string ("2s", "500ms") in YAML.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"2s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Default returns a configuration with default values. History lives next
// to the config file; if the config dir cannot be determined it is disabled.
func Default() *Config {
	historyPath := ""
	if dir, err := GetConfigDir(); err == nil {
		historyPath = defaultHistoryPath(dir)
	}

	return &Config{
		Version: Version,
		Listen: ListenConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Device: DeviceConfig{
			OperateDelay: Duration(DefaultOperateDelay),
		},
		History: HistoryConfig{
			Path: historyPath,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		MDNS: MDNSConfig{
			Instance: DefaultMDNSInstance,
		},
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Version != Version {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, Version)
	}
	if c.Listen.Port < 1 || c.Listen.Port > 65535 {
		return fmt.Errorf("invalid listen port %d: must be between 1 and 65535", c.Listen.Port)
	}
	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return fmt.Errorf("tls.cert and tls.key must be set together")
	}
	if c.Device.OperateDelay < 0 {
		return fmt.Errorf("device.operate_delay must not be negative, got %s", time.Duration(c.Device.OperateDelay))
	}
	if c.MDNS.Enabled && c.MDNS.Instance == "" {
		return fmt.Errorf("mdns.instance is required when mdns is enabled")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}
