package realtime

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// connectionState represents the WebSocket connection status
type connectionState int

const (
	stateDisconnected connectionState = iota
	stateConnecting
	stateConnected
	stateReconnecting
)

func (s connectionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Handler receives every text or binary frame read from the feed.
type Handler func(msg []byte)

// Client reads a JSON feed over WebSocket and keeps the connection alive.
type Client struct {
	Url string

	// Subscribe, when set, is written as JSON after every (re)connect.
	Subscribe any

	mu    sync.Mutex
	conn  *websocket.Conn
	state connectionState

	logger            *zap.Logger
	dialTimeout       time.Duration
	reconnectInterval time.Duration
	maxReconnect      time.Duration
	heartbeatDuration time.Duration
	heartbeatInterval time.Duration

	// OnDisconnect is called with the error that ended a connection.
	OnDisconnect func(err error)
}

// NewClient initializes a new Client
func NewClient(url string, logger *zap.Logger) *Client {
	return &Client{
		Url:               url,
		logger:            logger,
		dialTimeout:       10 * time.Second,
		heartbeatDuration: 5 * time.Second,
		heartbeatInterval: 20 * time.Second,
		reconnectInterval: 500 * time.Millisecond,
		maxReconnect:      30 * time.Second,
		state:             stateDisconnected,
	}
}

// Run connects, reads until the connection drops, and reconnects with exponential
// backoff. It returns when ctx is canceled.
func (client *Client) Run(ctx context.Context, handler Handler) {
	delay := client.reconnectInterval
	for {
		err := client.session(ctx, handler)
		if ctx.Err() != nil {
			client.setState(stateDisconnected)
			client.logger.Info("Feed client stopped")
			return
		}

		client.mu.Lock()
		if client.state == stateConnected {
			delay = client.reconnectInterval
		}
		client.state = stateReconnecting
		client.mu.Unlock()

		if client.OnDisconnect != nil {
			client.OnDisconnect(err)
		}
		client.logger.Warn("Feed connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", delay))

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			client.setState(stateDisconnected)
			return
		case <-timer.C:
		}
		delay *= 2
		if delay > client.maxReconnect {
			delay = client.maxReconnect
		}
	}
}

// session runs one connection from dial to failure.
func (client *Client) session(ctx context.Context, handler Handler) error {
	client.setState(stateConnecting)
	conn, err := client.dialServer(ctx)
	if err != nil {
		return err
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
		client.mu.Lock()
		client.conn = nil
		client.mu.Unlock()
	}()

	if err := client.sendSubscription(sessCtx, conn); err != nil {
		return err
	}
	client.setState(stateConnected)
	client.logger.Info("Feed connected", zap.String("url", client.Url))

	hbErr := make(chan error, 1)
	go func() { hbErr <- client.heartbeatLoop(sessCtx, conn) }()

	readErr := client.listenForMessages(sessCtx, conn, handler)
	select {
	case err := <-hbErr:
		if err != nil {
			return err
		}
	default:
	}
	return readErr
}

// dialServer connects to the WebSocket server
func (client *Client) dialServer(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, client.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, client.Url, nil)
	if err != nil {
		client.logger.Error("Dial failed", zap.Error(err))
		return nil, err
	}

	client.mu.Lock()
	client.conn = conn
	client.mu.Unlock()
	return conn, nil
}

func (client *Client) setState(s connectionState) {
	client.mu.Lock()
	client.state = s
	client.mu.Unlock()
}

// IsConnected checks if the client is connected
func (client *Client) IsConnected() bool {
	client.mu.Lock()
	defer client.mu.Unlock()
	return client.state == stateConnected && client.conn != nil
}

// isConnectionAlive determines if a read error means a dead connection
func isConnectionAlive(err error) bool {
	return !(errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, new(net.Error)) ||
		errors.As(err, new(websocket.CloseError)))
}
