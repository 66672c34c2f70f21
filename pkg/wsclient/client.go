// Package wsclient is a reconnecting client for the notification push
// gateway. It mirrors the browser client's behavior: authenticate on every
// connect, back off a little longer after each consecutive failure, give
// up after a bounded number of attempts, and never reconnect after a clean
// close.
package wsclient

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

type Config struct {
	// URL is the gateway endpoint, e.g. ws://host:8013/api/v1/notifications/ws.
	URL    string
	Token  string
	UserID string

	// MaxReconnectAttempts bounds consecutive failed reconnects before the
	// client gives up and enters StateError. Zero means the default.
	MaxReconnectAttempts int

	// OnMessage receives every inbound frame. Called from the read loop.
	OnMessage func(data []byte)
}

const (
	defaultMaxAttempts = 3
	baseReconnectDelay = 2 * time.Second
	reconnectDelayStep = 1 * time.Second
	handshakeTimeout   = 5 * time.Second
)

// reconnectDelay grows linearly with each consecutive failed attempt.
func reconnectDelay(attempt int) time.Duration {
	return baseReconnectDelay + time.Duration(attempt)*reconnectDelayStep
}

type Client struct {
	cfg    Config
	logger *zap.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	state     State
	attempts  int
	closed    bool // user asked for a clean close
	closeOnce sync.Once
	done      chan struct{}
}

func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxAttempts
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect dials the gateway and starts the read loop. Authentication is
// repeated in full on every dial; there is no session resumption.
func (c *Client) Connect(ctx context.Context) error {
	c.setState(StateConnecting)

	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		c.setState(StateError)
		return fmt.Errorf("invalid gateway url: %w", err)
	}
	q := u.Query()
	q.Set("token", c.cfg.Token)
	q.Set("userId", c.cfg.UserID)
	u.RawQuery = q.Encode()

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("dial gateway: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	go c.readLoop(ctx, conn)
	return nil
}

// Close performs a clean shutdown. A clean close never triggers reconnection.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.state = StateDisconnected
	c.mu.Unlock()

	c.closeOnce.Do(func() { close(c.done) })

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

// Done is closed when the client will make no further connection attempts.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(ctx, err)
			return
		}
		if c.cfg.OnMessage != nil {
			c.cfg.OnMessage(data)
		}
	}
}

// handleDrop decides whether a broken read ends the client or schedules a
// reconnect.
func (c *Client) handleDrop(ctx context.Context, err error) {
	c.mu.Lock()
	closedByUser := c.closed
	c.conn = nil
	c.mu.Unlock()

	cleanClose := websocket.IsCloseError(err,
		websocket.CloseNormalClosure, websocket.CloseGoingAway)

	if closedByUser || cleanClose || ctx.Err() != nil {
		c.setState(StateDisconnected)
		c.closeOnce.Do(func() { close(c.done) })
		return
	}

	c.logger.Warn("ws connection dropped", zap.Error(err))

	for {
		c.mu.Lock()
		attempt := c.attempts
		c.mu.Unlock()

		if attempt >= c.cfg.MaxReconnectAttempts {
			c.logger.Error("ws reconnect attempts exhausted",
				zap.Int("attempts", attempt))
			c.setState(StateError)
			c.closeOnce.Do(func() { close(c.done) })
			return
		}

		delay := reconnectDelay(attempt)
		c.logger.Info("ws reconnecting",
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			c.setState(StateDisconnected)
			c.closeOnce.Do(func() { close(c.done) })
			return
		case <-time.After(delay):
		}

		c.mu.Lock()
		c.attempts++
		c.mu.Unlock()

		if err := c.Connect(ctx); err == nil {
			return
		}
	}
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
