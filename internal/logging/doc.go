// Package logging provides structured logging for the forcedmode server and
// CLI.
//
// The package keeps one global zap logger with thin helpers around it, plus
// domain helpers for the lines every orchestration produces. Each of those
// carries the request_id of the HTTP request that triggered it.
//
// # Log Levels
//
//   - Debug: slot events, request lines, TLS handshakes
//   - Info: transitions, responses, connections
//   - Warn: failed transitions (the device is preserved)
//   - Error: panics recovered by the server, startup failures
//
// # Configuration
//
// Initialize logging at server startup:
//
//	if err := logging.Initialize(cfg.LogLevel); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// With no level and no FORCEDMODE_LOG_LEVEL in the environment the logger is
// a no-op, which is what the CLI wants.
//
// # Output Format
//
//	2026-03-02T10:30:45.123+0100  INFO  Device transition
//	  {"request_id": "9b1c...", "device_id": "bench-1", "transition": "operate", "state": "operate", "elapsed": "2.001s"}
package logging
