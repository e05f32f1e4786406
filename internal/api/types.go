// Package api defines the JSON bodies exchanged by the forcedmode server and
// its clients.
package api

import (
	"time"

	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/orchestrate"
)

// Paths served by the server.
const (
	PathRoot        = "/"
	PathOrchestrate = "/api/v1/orchestrate"
	PathDevice      = "/api/v1/device"
	PathRuns        = "/api/v1/runs"
	PathEvents      = "/api/v1/events"
	PathHealth      = "/api/v1/health"
	PathMetrics     = "/metrics"
)

// HeaderRequestID carries the request identifier in both directions.
const HeaderRequestID = "X-Request-ID"

// RootGreeting is the body of a successful GET /.
const RootGreeting = "Hello world!"

// DeviceStatus is the response for GET /api/v1/device.
type DeviceStatus struct {
	DeviceID  string `json:"device_id"`
	Available bool   `json:"available"`
	State     string `json:"state"`
}

// Health is the response for GET /api/v1/health.
type Health struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	DeviceID  string `json:"device_id"`
	History   bool   `json:"history"`
	Uptime    string `json:"uptime"`
	EventSubs int    `json:"event_subscribers"`
}

// RunListResponse is the response for GET /api/v1/runs.
type RunListResponse struct {
	Runs  []history.Run `json:"runs"`
	Total int           `json:"total"`
	// Outcomes counts every stored run by outcome, not only those listed
	Outcomes map[string]int `json:"outcomes"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	// Run is set when the request got as far as an orchestration.
	Run *history.Run `json:"run,omitempty"`
}

// Event types sent on the event stream.
const (
	EventStep = "step"
	EventRun  = "run"
	EventBusy = "busy"
)

// Event is one message on GET /api/v1/events.
type Event struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id,omitempty"`
	RunID     string            `json:"run_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	Step      *orchestrate.Step `json:"step,omitempty"`
	Run       *history.Run      `json:"run,omitempty"`
	Time      time.Time         `json:"time"`
}
