// Package client talks to a running fairrate server over its WebSocket
// equivalence endpoint.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"fairrate/internal/api"
	"fairrate/internal/logger"
)

var (
	// ErrClosed is returned by calls on a closed client.
	ErrClosed = errors.New("client closed")
	// ErrDisconnected fails requests still pending when the connection drops.
	ErrDisconnected = errors.New("connection lost before reply")
)

// Config configures WebSocket client behavior.
type Config struct {
	// ReconnectDelay is initial delay before reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay is maximum delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// ReplyTimeout bounds the wait for a single reply.
	ReplyTimeout time.Duration
}

// DefaultConfig returns default WebSocket configuration.
func DefaultConfig() Config {
	return Config{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReplyTimeout:      30 * time.Second,
	}
}

// WSClient sends equivalence requests and matches replies by request ID.
// It is safe for concurrent use.
type WSClient struct {
	endpoint string
	config   Config
	log      *logger.Entry

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// pending maps request ID to the channel waiting for its reply
	pending   map[string]chan api.EquivalenceMessage
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// Dial connects to endpoint (ws://host/ws/equivalence). A nil config uses
// DefaultConfig.
func Dial(ctx context.Context, endpoint string, config *Config, log *logger.Log) (*WSClient, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}
	if log == nil {
		log = logger.Discard()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		log:      log.WithComponent("ws_client"),
		pending:  make(map[string]chan api.EquivalenceMessage),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

// Quote sends req and waits for the matching reply. An empty req.ID is
// replaced with a generated one. Server-side failures come back in the
// reply's Error field, not as a Go error.
func (c *WSClient) Quote(ctx context.Context, req api.EquivalenceRequest) (*api.EquivalenceMessage, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}
	if req.ID == "" {
		req.ID = strconv.FormatUint(c.requestID.Add(1), 10)
	}

	replyCh := make(chan api.EquivalenceMessage, 1)
	c.pendingMu.Lock()
	if _, dup := c.pending[req.ID]; dup {
		c.pendingMu.Unlock()
		return nil, fmt.Errorf("request %q already pending", req.ID)
	}
	c.pending[req.ID] = replyCh
	c.pendingMu.Unlock()

	if err := c.send(req); err != nil {
		c.forget(req.ID)
		return nil, err
	}

	timer := time.NewTimer(c.config.ReplyTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-replyCh:
		if !ok {
			return nil, ErrDisconnected
		}
		return &reply, nil
	case <-timer.C:
		c.forget(req.ID)
		return nil, fmt.Errorf("reply timeout after %s", c.config.ReplyTimeout)
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		c.forget(req.ID)
		return nil, ctx.Err()
	}
}

func (c *WSClient) send(req api.EquivalenceRequest) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *WSClient) forget(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// Close closes the connection and fails every pending request.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
	}
	c.connMu.Unlock()

	c.failPending()
	c.wg.Wait()
	return nil
}

// failPending closes every waiting reply channel.
func (c *WSClient) failPending() {
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// readLoop reads replies and dispatches them to waiting callers.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.log.WithError(err).Warn("websocket read failed, reconnecting")

			// replies for requests sent on the old connection never arrive
			c.failPending()
			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.connect(ctx); err != nil {
		// next read error retries
		c.log.WithError(err).Warn("websocket reconnect failed")
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var reply api.EquivalenceMessage
	if err := json.Unmarshal(message, &reply); err != nil {
		c.log.WithError(err).Warn("malformed websocket reply")
		return
	}
	if reply.ID == "" {
		// the server could not parse a request at all, so it cannot be matched
		c.log.WithField("error", reply.Error).Warn("unmatched websocket reply")
		return
	}

	c.pendingMu.Lock()
	ch, ok := c.pending[reply.ID]
	if ok {
		delete(c.pending, reply.ID)
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- reply
	}
}

// pingLoop sends periodic ping frames to keep connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				_ = c.conn.WriteMessage(websocket.PingMessage, nil)
			}
			c.connMu.Unlock()
		}
	}
}
