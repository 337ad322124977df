package realtime

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(h *Hub, buf int) *Client {
	return &Client{send: make(chan []byte, buf), hub: h, id: "test"}
}

func TestHub_RoomsAndBroadcast(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	a := newTestClient(h, 4)
	b := newTestClient(h, 4)
	h.Register(a)
	h.Register(b)
	h.Subscribe("hypet500", a)

	h.BroadcastTo("hypet500", []byte("machine"))
	h.BroadcastAll([]byte("plant"))

	assert.Equal(t, "machine", string(<-a.send))
	assert.Equal(t, "plant", string(<-a.send))
	assert.Equal(t, "plant", string(<-b.send))
	assert.Empty(t, b.send)

	h.Leave("hypet500", a)
	assert.Equal(t, 0, h.Subscribers("hypet500"))
	assert.Equal(t, 2, h.ClientCount())

	h.Unsubscribe(a)
	h.Unsubscribe(a) // idempotent
	assert.Equal(t, 1, h.ClientCount())
	_, open := <-a.send
	assert.False(t, open)
}

func TestHub_SlowClientSkipped(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	slow := newTestClient(h, 1)
	h.Register(slow)

	done := make(chan struct{})
	go func() {
		h.BroadcastAll([]byte("1"))
		h.BroadcastAll([]byte("2")) // buffer full, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on slow client")
	}
	assert.Equal(t, "1", string(<-slow.send))
}

func TestServeWS_InitialSnapshotAndSubscribe(t *testing.T) {
	h := NewHub(zap.NewNop().Sugar())
	srv := httptest.NewServer(ServeWS(h, func() ([]byte, error) {
		return []byte(`{"type":"dashboard"}`), nil
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"dashboard"}`, string(msg))

	require.NoError(t, conn.WriteJSON(SubscribeMessage{Action: "subscribe", MachineIDs: []string{"hypet500"}}))
	require.Eventually(t, func() bool { return h.Subscribers("hypet500") == 1 }, time.Second, 5*time.Millisecond)

	h.BroadcastTo("hypet500", []byte(`{"type":"machine"}`))
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"machine"}`, string(msg))

	conn.Close()
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}
