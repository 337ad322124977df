package realtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// maxConsecutiveReadErrors bounds how long a connection that keeps failing
// reads without closing is tolerated.
const maxConsecutiveReadErrors = 10

// sendSubscription writes the configured subscribe frame, if any.
func (client *Client) sendSubscription(ctx context.Context, conn *websocket.Conn) error {
	if client.Subscribe == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, client.dialTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, conn, client.Subscribe); err != nil {
		return fmt.Errorf("sendSubscription: %w", err)
	}
	return nil
}

// listenForMessages reads frames until the connection dies
func (client *Client) listenForMessages(ctx context.Context, conn *websocket.Conn, handler Handler) error {
	failures := 0
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if !isConnectionAlive(err) {
				return err
			}
			failures++
			if failures >= maxConsecutiveReadErrors {
				return errors.New("too many consecutive read errors")
			}
			client.logger.Debug("Transient read error", zap.Error(err))
			continue
		}
		failures = 0
		handler(msg)
	}
}
