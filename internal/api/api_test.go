package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/monitor"
	"plant-monitor/internal/status"
)

func newTestServer(t *testing.T) (*Server, *fleet.Fleet) {
	t.Helper()
	f := fleet.New(zap.NewNop().Sugar())
	c := status.NewClassifier(status.DefaultThresholds())
	at := time.Date(2026, 6, 24, 8, 0, 0, 0, time.UTC)
	require.NoError(t, f.Apply(context.Background(), "http", []status.MachineHealth{
		status.NewMachineHealth(c, "hypet500", "HyPET500", status.NewMetrics(28, 145, 72),
			[]status.Fault{{Code: "101", Label: "High temperature detected"}, {Code: "132", Label: "Pressure fluctuation"}}, at),
		status.NewMachineHealth(c, "hypet400", "HyPET400", status.NewMetrics(24, 120, 88), nil, at),
		status.NewMachineHealth(c, "hypet300", "HyPET300", status.NewMetrics(22, 110, 94), nil, at),
	}))

	s := NewServer(f, metrics.New(), zap.NewNop().Sugar())
	s.Checks = []monitor.Check{{Name: "telemetry", Probe: func(context.Context) error { return nil }}}
	return s, f
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestListMachines_Shape(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s.Handler(), http.MethodGet, "/machines", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 3)

	first := got[0]
	assert.Equal(t, "hypet300", first["id"])
	assert.Equal(t, "operational", first["status"])
	assert.ElementsMatch(t, []string{"id", "name", "status", "metrics", "faults"}, keys(first))
	assert.Equal(t, map[string]any{"mold_temp_c": 22.0, "injection_pressure_bar": 110.0, "efficiency_pct": 94.0}, first["metrics"])
	assert.Equal(t, []any{}, first["faults"])

	last := got[2]
	assert.Equal(t, "critical", last["status"])
	assert.Len(t, last["faults"], 2)
}

func TestDashboardAndPlant(t *testing.T) {
	s, f := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/plant", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plant map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plant))
	assert.Equal(t, "critical", plant["status"])
	assert.Equal(t, map[string]any{"operational": 1.0, "warning": 1.0, "critical": 1.0}, plant["counts"])
	assert.Equal(t, false, plant["stale"])

	f.MarkFailed("http", assert.AnError)
	rec = do(t, h, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Plant struct {
			Stale bool   `json:"stale"`
			Total int    `json:"total"`
			Error string `json:"last_error"`
		} `json:"plant"`
		Machines []struct {
			ID    string `json:"id"`
			Color string `json:"color"`
		} `json:"machines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.True(t, view.Plant.Stale)
	assert.Equal(t, 3, view.Plant.Total)
	assert.NotEmpty(t, view.Plant.Error)
	require.Len(t, view.Machines, 3)
	assert.Equal(t, status.Critical.Color(), view.Machines[2].Color)
}

func TestGetMachine(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/machines/hypet400", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	assert.Equal(t, "warning", detail["status"])
	require.Len(t, detail["breaches"], 1)

	rec = do(t, h, http.MethodGet, "/api/machines/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"unknown machine"}`, rec.Body.String())
}

func TestCreateIntent(t *testing.T) {
	s, f := newTestServer(t)
	h := s.Handler()
	before := f.View()

	rec := do(t, h, http.MethodPost, "/api/intents", `{"kind":"detail","machine_id":"hypet500"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var intent Intent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	_, err := uuid.Parse(intent.ID)
	assert.NoError(t, err)
	assert.Equal(t, "/machines/hypet500", intent.Route)

	rec = do(t, h, http.MethodPost, "/api/intents", `{"kind":"assistant","machine_id":"hypet400"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &intent))
	assert.Equal(t, "/assistant?machine_id=hypet400", intent.Route)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/intents", `{"kind":"delete","machine_id":"hypet500"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/api/intents", `{"kind":"detail","machine_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/intents", `not json`).Code)

	after := f.View()
	assert.Equal(t, before.Machines, after.Machines, "intents never mutate the working set")
	assert.Equal(t, before.LastRefresh, after.LastRefresh)
}

func TestAskAI(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/ask-ai", `{"question":"Why is OEE down?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"This is a placeholder answer to your question: 'Why is OEE down?'."}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/ask-ai", `{"question":"status","machine_id":"hypet500"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"severity":"critical"`)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/ask-ai", `{"question":"x","machine_id":"nope"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/ask-ai", `{"question":""}`).Code)
}

func TestCORSAndOperationalRoutes(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/machines", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", "").Code)

	do(t, h, http.MethodGet, "/machines", "")
	rec = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{route="/machines",status="200"}`)
}

func TestRecoversFromPanic(t *testing.T) {
	s, _ := newTestServer(t)
	s.WebSocket = http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := do(t, s.Handler(), http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
