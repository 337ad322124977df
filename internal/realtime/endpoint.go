package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // dashboard is served from any origin, like the REST API
	},
}

// Snapshot returns the message a client receives right after connecting.
type Snapshot func() ([]byte, error)

// ServeWS upgrades the request and streams updates to the client.
//
//	wscat -c "ws://localhost:8080/ws"
//	{"action":"subscribe","machine_ids":["hypet500"]}
func ServeWS(hub *Hub, snapshot Snapshot) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.logger.Warnw("websocket upgrade failed", "error", err)
			return
		}

		client := NewClient(conn, hub)
		if snapshot != nil {
			msg, err := snapshot()
			if err != nil {
				hub.logger.Errorw("failed to build initial dashboard", "error", err)
			} else {
				client.send <- msg
			}
		}
		hub.Register(client)
		hub.logger.Infow("websocket client connected", "client_id", client.id, "remote", conn.RemoteAddr().String())

		go client.WritePump()
		client.ReadPump()
	}
}
