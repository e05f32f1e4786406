package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/forcedmode/internal/api"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/logging"
	"github.com/muurk/forcedmode/internal/mode"
	"github.com/muurk/forcedmode/internal/orchestrate"
	"github.com/muurk/forcedmode/internal/slot"
	"github.com/muurk/forcedmode/internal/version"
)

// Response bodies for the plain-text root endpoint.
const (
	busyMessage   = "hardware is currently in use elsewhere"
	failedMessage = "transition failed, device preserved"
)

// maxRunsLimit caps GET /api/v1/runs?limit=N.
const maxRunsLimit = 500

func (s *Server) registerRoutes() {
	s.mux.HandleFunc(api.PathOrchestrate, s.handleOrchestrate)
	s.mux.HandleFunc(api.PathDevice, s.handleDevice)
	s.mux.HandleFunc(api.PathRuns, s.handleRuns)
	s.mux.HandleFunc(api.PathEvents, s.hub.serveEvents)
	s.mux.HandleFunc(api.PathHealth, s.handleHealth)
	s.mux.Handle(api.PathMetrics, s.metrics.Handler())
	s.mux.HandleFunc(api.PathRoot, s.handleRoot)
}

// handleOrchestrate runs the sequence and answers with the run record.
func (s *Server) handleOrchestrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	run, err := s.orchestrate(r.Context(), RequestID(r.Context()))
	status := statusFor(err)
	if status == http.StatusOK {
		writeJSON(w, status, run)
		return
	}

	resp := api.ErrorResponse{
		Error:     errorMessage(status),
		Details:   err.Error(),
		RequestID: run.RequestID,
		Run:       &run,
	}
	writeJSON(w, status, resp)
}

// handleRoot is the plain-text form of orchestrate.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != api.PathRoot {
		writeJSONError(w, r, http.StatusNotFound, "not found", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	_, err := s.orchestrate(r.Context(), RequestID(r.Context()))
	status := statusFor(err)
	switch status {
	case http.StatusOK:
		writeText(w, status, api.RootGreeting)
	case http.StatusConflict:
		writeText(w, status, busyMessage)
	default:
		writeText(w, status, err.Error())
	}
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	st := s.slot.Peek()
	writeJSON(w, http.StatusOK, api.DeviceStatus{
		DeviceID:  st.DeviceID,
		Available: st.Available,
		State:     st.State,
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	limit := history.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRunsLimit {
			writeJSONError(w, r, http.StatusBadRequest, "invalid limit",
				fmt.Sprintf("limit must be between 1 and %d", maxRunsLimit))
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		logging.Error("Failed to list runs", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeJSONError(w, r, http.StatusInternalServerError, "failed to list runs", err.Error())
		return
	}

	outcomes, err := s.history.Count(r.Context())
	if err != nil {
		logging.Warn("Failed to count runs", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	}

	writeJSON(w, http.StatusOK, api.RunListResponse{Runs: runs, Total: len(runs), Outcomes: outcomes})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, r, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	info := version.Get()
	writeJSON(w, http.StatusOK, api.Health{
		Status:    "ok",
		Version:   info.Version,
		Commit:    info.Commit,
		DeviceID:  s.slot.DeviceID(),
		History:   s.history != nil,
		Uptime:    time.Since(s.startedAt).Round(time.Second).String(),
		EventSubs: s.hub.count(),
	})
}

// orchestrate borrows the device, runs the sequence and records the run.
// The device is back in the slot when it returns, and also when it panics.
func (s *Server) orchestrate(ctx context.Context, requestID string) (run history.Run, err error) {
	deviceID := s.slot.DeviceID()
	run = history.NewRun(requestID, deviceID)

	defer func() {
		if rec := recover(); rec != nil {
			s.metrics.SetAvailable(s.slot.Available())
			run.Finish(history.OutcomeError, fmt.Errorf("panic: %v", rec))
			s.finishRun(ctx, run)
			panic(rec)
		}
	}()

	err = s.slot.Borrow(ctx, func(ctx context.Context, sb mode.Standby[mode.Driver]) (mode.Standby[mode.Driver], error) {
		logging.LogSlot(requestID, deviceID, "taken")
		s.metrics.RecordTake("taken")
		s.metrics.SetAvailable(false)
		defer logging.LogSlot(requestID, deviceID, "returned")

		out, terr := orchestrate.Run(ctx, sb, func(st orchestrate.Step) {
			run.Steps = append(run.Steps, st)
			if st.Failed() {
				logging.LogTransitionFailed(requestID, deviceID, st.Transition, errors.New(st.Error))
			} else {
				logging.LogTransition(requestID, deviceID, st.Transition, st.State, st.Elapsed)
			}
			s.metrics.RecordTransition(st.Transition, st.Failed(), st.Elapsed)
			step := st
			s.hub.publish(api.Event{Type: api.EventStep, RequestID: requestID, RunID: run.ID, DeviceID: deviceID, Step: &step})
		})
		if terr != nil {
			return terr.Standby, terr
		}
		return out, nil
	})
	s.metrics.SetAvailable(s.slot.Available())

	var terr *mode.TransitionError[mode.Driver]
	switch {
	case err == nil:
		run.Finish(history.OutcomeOK, nil)
	case errors.Is(err, slot.ErrBusy):
		logging.LogSlot(requestID, deviceID, "busy")
		s.metrics.RecordTake("busy")
		run.Finish(history.OutcomeBusy, err)
	case errors.As(err, &terr):
		run.FailedTransition = terr.Transition
		run.Finish(history.OutcomeFailed, err)
	default:
		logging.Error("Orchestration error", zap.String("request_id", requestID), zap.Error(err))
		run.Finish(history.OutcomeError, err)
	}

	s.finishRun(ctx, run)
	return run, err
}

// finishRun records the run in history, metrics and on the event stream.
func (s *Server) finishRun(ctx context.Context, run history.Run) {
	s.metrics.RecordOrchestration(run.Outcome, time.Duration(run.DurationMS)*time.Millisecond)

	if err := s.history.Record(context.WithoutCancel(ctx), run); err != nil {
		logging.Error("Failed to record run",
			zap.String("request_id", run.RequestID),
			zap.String("run_id", run.ID),
			zap.Error(err),
		)
	}

	evType := api.EventRun
	if run.Outcome == history.OutcomeBusy {
		evType = api.EventBusy
	}
	r := run
	s.hub.publish(api.Event{Type: evType, RequestID: run.RequestID, RunID: run.ID, DeviceID: run.DeviceID, Run: &r})
}

// statusFor maps an orchestration error to an HTTP status.
func statusFor(err error) int {
	var terr *mode.TransitionError[mode.Driver]
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, slot.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &terr):
		return http.StatusTeapot
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(status int) string {
	switch status {
	case http.StatusConflict:
		return busyMessage
	case http.StatusTeapot:
		return failedMessage
	default:
		return "orchestration error"
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message, details string) {
	writeJSON(w, status, api.ErrorResponse{
		Error:     message,
		Details:   details,
		RequestID: RequestID(r.Context()),
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
