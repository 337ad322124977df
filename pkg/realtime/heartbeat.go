package realtime

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
)

// heartbeatLoop pings the server until ctx ends. A failed ping closes the
// connection so the reader returns and Run reconnects.
func (client *Client) heartbeatLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(client.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := client.sendHeartbeat(ctx, conn); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			_ = conn.Close(websocket.StatusGoingAway, "heartbeat failed")
			return fmt.Errorf("heartbeat failed: %w", err)
		}
	}
}

// sendHeartbeat sends a ping and waits for the pong
func (client *Client) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	hbCtx, cancel := context.WithTimeout(ctx, client.heartbeatDuration)
	defer cancel()
	return conn.Ping(hbCtx)
}
