package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plant-monitor/internal/fleet"
	"plant-monitor/internal/realtime"
	"plant-monitor/internal/status"
)

var classifier = status.NewClassifier(status.DefaultThresholds())

func machine(id string, temp, pressure, efficiency float64) status.MachineHealth {
	return status.NewMachineHealth(classifier, id, "", status.NewMetrics(temp, pressure, efficiency), nil, time.Time{})
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func (w *fakeWriter) events(t *testing.T) []map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []map[string]any
	for _, m := range w.msgs {
		var ev map[string]any
		require.NoError(t, json.Unmarshal(m.Value, &ev))
		assert.Equal(t, ev["machine_id"], string(m.Key))
		out = append(out, ev)
	}
	return out
}

func TestStatusPublisher_PublishesTransitionsOnly(t *testing.T) {
	f := fleet.New(zap.NewNop().Sugar())
	w := &fakeWriter{}
	p := NewStatusPublisher(w, zap.NewNop().Sugar())
	f.OnChange(p.Listener())

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	f.Upsert("http", machine("a", 22, 110, 94)) // new: nil -> operational
	f.Upsert("http", machine("a", 22, 111, 94)) // same severity, not published
	f.Upsert("http", machine("a", 28, 145, 72)) // operational -> critical
	require.NoError(t, f.Apply(ctx, "http", []status.MachineHealth{machine("b", 22, 110, 94)})) // a removed, b new

	cancel()
	p.Shutdown()
	assert.True(t, w.closed)

	events := w.events(t)
	require.Len(t, events, 4)
	assert.Nil(t, events[0]["previous"])
	assert.Equal(t, "operational", events[0]["current"])
	assert.Equal(t, "operational", events[1]["previous"])
	assert.Equal(t, "critical", events[1]["current"])
	assert.Equal(t, "critical", events[1]["plant"])
	assert.Equal(t, "machine_status", events[1]["type"])

	var removal map[string]any
	for _, ev := range events[2:] {
		if ev["machine_id"] == "a" {
			removal = ev
		}
	}
	require.NotNil(t, removal)
	assert.Equal(t, "critical", removal["previous"])
	assert.Nil(t, removal["current"])
}

func TestRealtimeService_PushesMachineAndPlant(t *testing.T) {
	f := fleet.New(zap.NewNop().Sugar())
	hub := realtime.NewHub(zap.NewNop().Sugar())
	svc := NewRealtimeService(f, hub, zap.NewNop().Sugar())
	svc.Start()

	snap, err := svc.Snapshot()
	require.NoError(t, err)
	assert.Contains(t, string(snap), `"type":"dashboard"`)

	srv := newHubServer(t, hub, svc)
	conn := srv.dial(t, "a")
	srv.readType(t, conn, TypeDashboard)

	f.Upsert("kafka", machine("a", 28, 145, 72))
	msgs := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		m := srv.read(t, conn)
		msgs[m["type"].(string)] = m
	}
	require.Contains(t, msgs, TypeMachine)
	require.Contains(t, msgs, TypePlant)
	assert.Equal(t, "critical", msgs[TypeMachine]["machine"].(map[string]any)["status"])
	assert.Equal(t, "critical", msgs[TypePlant]["plant"].(map[string]any)["status"])
}

func TestRealtimeService_PushesStaleBanner(t *testing.T) {
	f := fleet.New(zap.NewNop().Sugar())
	hub := realtime.NewHub(zap.NewNop().Sugar())
	svc := NewRealtimeService(f, hub, zap.NewNop().Sugar())
	svc.Start()

	ctx := context.Background()
	require.NoError(t, f.Apply(ctx, "http", []status.MachineHealth{machine("a", 24, 120, 88)}))

	srv := newHubServer(t, hub, svc)
	conn := srv.dial(t, "a")
	srv.readType(t, conn, TypeDashboard)

	f.MarkFailed("http", errors.New("connection refused"))
	m := srv.read(t, conn)
	require.Equal(t, TypePlant, m["type"])
	plant := m["plant"].(map[string]any)
	assert.Equal(t, true, plant["stale"])
	assert.Equal(t, "connection refused", plant["last_error"])
	assert.Equal(t, "warning", plant["status"])

	// same snapshot again: no severity moves, only the banner clears
	require.NoError(t, f.Apply(ctx, "http", []status.MachineHealth{machine("a", 24, 120, 88)}))
	msgs := map[string]map[string]any{}
	for i := 0; i < 2; i++ {
		m := srv.read(t, conn)
		msgs[m["type"].(string)] = m
	}
	require.Contains(t, msgs, TypeMachine)
	require.Contains(t, msgs, TypePlant)
	plant = msgs[TypePlant]["plant"].(map[string]any)
	assert.Equal(t, false, plant["stale"])
	assert.NotContains(t, plant, "last_error")
}

type hubServer struct {
	url string
	hub *realtime.Hub
}

func newHubServer(t *testing.T, hub *realtime.Hub, svc *RealtimeService) *hubServer {
	srv := httptest.NewServer(realtime.ServeWS(hub, svc.Snapshot))
	t.Cleanup(srv.Close)
	return &hubServer{url: "ws" + strings.TrimPrefix(srv.URL, "http"), hub: hub}
}

// dial connects and subscribes to one machine, waiting until the hub has the room.
func (s *hubServer) dial(t *testing.T, machineID string) *websocket.Conn {
	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(realtime.SubscribeMessage{Action: "subscribe", MachineIDs: []string{machineID}}))
	require.Eventually(t, func() bool { return s.hub.Subscribers(machineID) == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func (s *hubServer) read(t *testing.T, conn *websocket.Conn) map[string]any {
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, conn.ReadJSON(&m))
	return m
}

func (s *hubServer) readType(t *testing.T, conn *websocket.Conn, typ string) {
	assert.Equal(t, typ, s.read(t, conn)["type"])
}
