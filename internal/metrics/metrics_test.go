package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledIsNoop(t *testing.T) {
	m := New(false)
	assert.False(t, m.Enabled())

	m.RecordTake("busy")
	m.RecordTransition("operate", false, time.Second)
	m.RecordOrchestration("ok", time.Second)
	m.SetAvailable(false)
	m.SetEventClients(3)

	var nilMetrics *Metrics
	nilMetrics.RecordTake("taken")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecording(t *testing.T) {
	m := New(true)
	require.True(t, m.Enabled())

	m.RecordTake("taken")
	m.RecordTake("busy")
	m.RecordTake("busy")
	m.RecordTransition("configure", false, 10*time.Millisecond)
	m.RecordTransition("operate", true, time.Second)
	m.RecordOrchestration("failed", time.Second)
	m.SetAvailable(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.takes.WithLabelValues("taken")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.takes.WithLabelValues("busy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("operate", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orchestrations.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.available))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(true)
	m.RecordOrchestration("ok", 2*time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `forcedmode_orchestrations_total{outcome="ok"} 1`)
	assert.Contains(t, string(body), "forcedmode_device_available 1")
}
