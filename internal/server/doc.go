// Package server is the HTTP boundary around the device slot.
//
// Every request that wants the hardware borrows it from the slot, runs the
// orchestration sequence and puts it back, whatever happened. A request that
// finds the slot empty is answered straight away instead of waiting.
//
// # Endpoints
//
//	GET  /                    plain-text orchestration ("Hello world!" on success)
//	POST /api/v1/orchestrate  orchestration, answers with the run record
//	GET  /api/v1/device       slot status
//	GET  /api/v1/runs         recent runs (?limit=N, 1..500)
//	GET  /api/v1/events       WebSocket stream of step and run events
//	GET  /api/v1/health       liveness and build info
//	GET  /metrics             Prometheus metrics, when enabled
//
// # Status Codes
//
//	200 the sequence completed and the device is back in standby
//	409 the device is held by another request
//	418 a transition failed; the device was preserved and put back
//	500 anything else, including a recovered panic
//
// # Request IDs
//
// Each request carries an X-Request-ID, taken from the request header or
// generated, echoed in the response and attached to every log line, run
// record and event it produces.
//
// # TLS
//
// When both a certificate and a key are configured the listener is wrapped
// in TLS 1.2 or later. See NewTLSConfig.
//
// # Usage
//
//	srv, err := server.New(&server.Config{Host: "0.0.0.0", Port: 8080}, sl, store, m)
//	if err != nil {
//	    return err
//	}
//	return srv.Start() // blocks until SIGINT/SIGTERM
package server
