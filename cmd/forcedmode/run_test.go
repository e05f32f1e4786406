package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/forcedmode/internal/client"
	"github.com/muurk/forcedmode/internal/hardware"
	"github.com/muurk/forcedmode/internal/history"
	"github.com/muurk/forcedmode/internal/metrics"
	"github.com/muurk/forcedmode/internal/mode"
	"github.com/muurk/forcedmode/internal/server"
	"github.com/muurk/forcedmode/internal/slot"
)

type testServer struct {
	client *client.Client
	slot   *slot.Slot[mode.Driver]
	drv    *hardware.Faulty
}

func startServer(t *testing.T) *testServer {
	t.Helper()
	drv := hardware.NewFaulty(hardware.NewMock("dev-1", 5*time.Millisecond))
	sl := slot.New(mode.New[mode.Driver](drv))

	srv, err := server.New(&server.Config{Host: "127.0.0.1"}, sl, nil, metrics.New(false))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	c := client.New("http://" + ln.Addr().String())
	c.SetTimeout(5 * time.Second)
	return &testServer{client: c, slot: sl, drv: drv}
}

func decodeRun(t *testing.T, buf *bytes.Buffer) history.Run {
	t.Helper()
	var run history.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &run), buf.String())
	return run
}

func TestRunJSONSuccess(t *testing.T) {
	ts := startServer(t)
	var buf bytes.Buffer

	require.NoError(t, runJSON(context.Background(), ts.client, &buf))

	run := decodeRun(t, &buf)
	assert.Equal(t, history.OutcomeOK, run.Outcome)
	assert.Equal(t, "dev-1", run.DeviceID)
	assert.Len(t, run.Steps, 4)
	assert.True(t, ts.slot.Available())
}

func TestRunJSONTransitionFailure(t *testing.T) {
	ts := startServer(t)
	ts.drv.FailOperate(errors.New("laser interlock open"))
	var buf bytes.Buffer

	err := runJSON(context.Background(), ts.client, &buf)
	require.Error(t, err)
	assert.True(t, client.IsTransitionFailure(err))

	run := decodeRun(t, &buf)
	assert.Equal(t, history.OutcomeFailed, run.Outcome)
	assert.Equal(t, "operate", run.FailedTransition)
	assert.Contains(t, run.Error, "laser interlock open")
	assert.True(t, ts.slot.Available())
}

func TestRunJSONBusy(t *testing.T) {
	ts := startServer(t)
	h, err := ts.slot.TryTake()
	require.NoError(t, err)
	defer ts.slot.PutBack(h)

	var buf bytes.Buffer
	err = runJSON(context.Background(), ts.client, &buf)
	require.Error(t, err)
	assert.True(t, client.IsBusy(err))
}

func TestRunWithProgressSuccess(t *testing.T) {
	ts := startServer(t)
	var buf bytes.Buffer

	require.NoError(t, runWithProgress(context.Background(), ts.client, &buf))

	out := buf.String()
	assert.Contains(t, out, "Orchestrate")
	assert.Contains(t, out, "dev-1")
	configures, operates, releases := ts.drv.Calls()
	assert.Equal(t, 1, configures)
	assert.Equal(t, 1, operates)
	assert.Equal(t, 2, releases)
}

func TestRunWithProgressFailureIsReported(t *testing.T) {
	ts := startServer(t)
	ts.drv.FailConfigure(errors.New("bus fault"))
	var buf bytes.Buffer

	err := runWithProgress(context.Background(), ts.client, &buf)
	require.Error(t, err)

	var r reported
	assert.True(t, errors.As(err, &r), "failure should already be rendered")
	assert.True(t, client.IsTransitionFailure(err))
	assert.NotEmpty(t, buf.String())
}

func TestRunWithProgressBusyRetriesUntilFree(t *testing.T) {
	ts := startServer(t)
	ts.client.SetRetry(10, 20*time.Millisecond)

	h, err := ts.slot.TryTake()
	require.NoError(t, err)
	go func() {
		time.Sleep(60 * time.Millisecond)
		ts.slot.PutBack(h)
	}()

	var buf bytes.Buffer
	require.NoError(t, runWithProgress(context.Background(), ts.client, &buf))
	assert.Contains(t, buf.String(), "retrying")
}

func TestOutcomeSummary(t *testing.T) {
	assert.Equal(t, "All runs: ok 12 · failed 1", outcomeSummary(map[string]int{"failed": 1, "ok": 12}))
	assert.Equal(t, "No totals available.", outcomeSummary(nil))
}

func TestHistoryRows(t *testing.T) {
	runs := []history.Run{{
		ID:               "0123456789abcdef",
		Outcome:          history.OutcomeFailed,
		FailedTransition: "operate",
		StartedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DurationMS:       1500,
	}}

	rows := historyRows(runs)
	require.Len(t, rows, 1)
	assert.Equal(t, "01234567", rows[0][1])
	assert.Equal(t, "failed", rows[0][2])
	assert.Equal(t, "operate", rows[0][3])
	assert.Equal(t, "0", rows[0][4])
	assert.Equal(t, "1.5s", rows[0][5])
}
