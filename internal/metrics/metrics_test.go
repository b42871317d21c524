package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterValue sums the samples of a counter family whose labels include want.
func counterValue(t *testing.T, m *Metrics, name string, want map[string]string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Emitted("data_updated", "high")
	m.Emitted("data_updated", "high")
	m.Dispatched("data_updated", "immediate", time.Millisecond)
	m.HandlerFailed("data_updated", "panic")
	m.TickSkipped("scheduler")
	m.MonitorCycle("no_action")
	m.ActionTransition("executed")
	m.DerivedRecorded("alert")
	m.SetQueueDepth(7)

	assert.Equal(t, 2.0, counterValue(t, m, "synapse_envelopes_emitted_total", map[string]string{"kind": "data_updated", "priority": "high"}))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_envelopes_dispatched_total", map[string]string{"delivery": "immediate"}))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_handler_failures_total", map[string]string{"reason": "panic"}))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_ticks_skipped_total", map[string]string{"loop": "scheduler"}))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_monitor_cycles_total", nil))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_proactive_actions_total", map[string]string{"state": "executed"}))
	assert.Equal(t, 1.0, counterValue(t, m, "synapse_derived_recorded_total", map[string]string{"type": "alert"}))
	assert.Equal(t, 7.0, counterValue(t, m, "synapse_queue_depth", nil))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.Emitted("k", "low")
		m.Dispatched("k", "scheduled", time.Second)
		m.HandlerFailed("k", "error")
		m.SetQueueDepth(1)
		m.TickSkipped("monitor")
		m.MonitorCycle("error")
		m.ActionTransition("failed")
		m.DerivedRecorded("recommendation")
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Emitted("user_action", "low")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `synapse_envelopes_emitted_total{kind="user_action",priority="low"} 1`))
}

func TestNewServer_Routes(t *testing.T) {
	s := NewServer(":0", New())

	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
