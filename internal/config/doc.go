// Package config loads the forcedmode server configuration.
//
// The configuration is a YAML file stored in the platform's config
// directory:
//   - Linux: $XDG_CONFIG_HOME/forcedmode/config.yaml or $HOME/.config/forcedmode/config.yaml
//   - macOS: $HOME/.config/forcedmode/config.yaml
//   - Windows: %LOCALAPPDATA%\forcedmode\config.yaml
//
// A missing file is not an error; Load returns the defaults (listen on
// 127.0.0.1:8080, 2s operate delay, metrics on, history next to the config
// file). Command-line flags override file values after loading.
//
// # Example
//
//	version: 1
//	listen:
//	  host: 0.0.0.0
//	  port: 8443
//	tls:
//	  cert: /etc/forcedmode/server.crt
//	  key: /etc/forcedmode/server.key
//	device:
//	  id: bench-1
//	  operate_delay: 2s
//	history:
//	  path: /var/lib/forcedmode/history.db
//	metrics:
//	  enabled: true
//	mdns:
//	  enabled: true
//	  instance: bench-1
//	log_level: info
package config
