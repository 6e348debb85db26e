package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

const (
	// Maximum message size allowed from the server.
	maxMessageSize = 64 * 1024

	// Size of the outbound send buffer.
	sendQueueSize = 64
)

// Config holds websocket transport configuration
type Config struct {
	URL          string
	DialTimeout  time.Duration
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// wsConn bundles the per-connection state so a reconnect never touches a
// dead connection's channels.
type wsConn struct {
	conn      *websocket.Conn
	send      chan domain.Event
	done      chan struct{}
	closeOnce sync.Once
}

// WebSocket implements ports.Transport over gorilla/websocket. It owns at
// most one physical connection; reconnection policy lives above it in the
// event bus.
type WebSocket struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cb      ports.TransportCallbacks
	current *wsConn
}

var _ ports.Transport = (*WebSocket)(nil)

// New creates a websocket transport for the given endpoint.
func New(cfg Config, logger *slog.Logger) *WebSocket {
	return &WebSocket{
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "ws_transport"),
	}
}

func (t *WebSocket) SetCallbacks(cb ports.TransportCallbacks) {
	t.mu.Lock()
	t.cb = cb
	t.mu.Unlock()
}

// Connect dials the push service. The credential travels as a bearer
// token in the handshake. On success the read/write pumps start and
// OnOpen fires before Connect returns.
func (t *WebSocket) Connect(ctx context.Context, credential string) error {
	t.mu.Lock()
	if t.current != nil {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: t.cfg.DialTimeout}
	header := http.Header{"Authorization": {"Bearer " + credential}}

	conn, resp, err := dialer.DialContext(ctx, t.cfg.URL, header)
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		return err
	}

	c := &wsConn{
		conn: conn,
		send: make(chan domain.Event, sendQueueSize),
		done: make(chan struct{}),
	}

	t.mu.Lock()
	if t.current != nil {
		// Lost the race against a concurrent Connect; keep the first.
		t.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	t.current = c
	cb := t.cb
	t.mu.Unlock()

	go t.readPump(c)
	go t.writePump(c)

	if cb.OnOpen != nil {
		cb.OnOpen()
	}
	return nil
}

// Send queues one event for transmission, fire-and-forget.
func (t *WebSocket) Send(event domain.Event) error {
	t.mu.Lock()
	c := t.current
	t.mu.Unlock()

	if c == nil {
		return errors.New("transport not connected")
	}

	select {
	case c.send <- event:
		return nil
	default:
		return errors.New("transport send buffer full")
	}
}

// Disconnect tears down the current connection without firing OnClose;
// the caller asked for this, so there is nothing to recover from.
func (t *WebSocket) Disconnect() {
	t.mu.Lock()
	c := t.current
	t.current = nil
	t.mu.Unlock()

	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(t.cfg.WriteTimeout))
	_ = c.conn.Close()
}

// teardown handles an involuntary connection loss: clean up and report
// the reason upstream exactly once.
func (t *WebSocket) teardown(c *wsConn, reason error) {
	t.mu.Lock()
	active := t.current == c
	if active {
		t.current = nil
	}
	cb := t.cb
	t.mu.Unlock()

	var fired bool
	c.closeOnce.Do(func() {
		close(c.done)
		fired = true
	})
	_ = c.conn.Close()

	// Only the connection that dropped involuntarily reports a close;
	// a user-initiated Disconnect already consumed the closeOnce.
	if active && fired && cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// readPump decodes inbound frames and hands them to the event bus. Runs
// in its own goroutine per connection.
func (t *WebSocket) readPump(c *wsConn) {
	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait)); err != nil {
		t.logger.Error("failed to set read deadline", "error", err)
		t.teardown(c, err)
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(t.cfg.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("websocket read error", "error", err)
			}
			t.teardown(c, err)
			return
		}

		var event domain.Event
		if err := json.Unmarshal(message, &event); err != nil {
			t.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}

		t.mu.Lock()
		cb := t.cb
		t.mu.Unlock()
		if cb.OnMessage != nil {
			cb.OnMessage(event)
		}
	}
}

// writePump serializes outbound events and keepalive pings. Runs in its
// own goroutine per connection.
func (t *WebSocket) writePump(c *wsConn) {
	ticker := time.NewTicker(t.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case event := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				t.logger.Error("failed to set write deadline", "error", err)
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				t.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.logger.Debug("failed to send ping", "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}
