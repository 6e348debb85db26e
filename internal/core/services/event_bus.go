package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskwire/taskwire-client/internal/auth"
	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/ports"
	"github.com/taskwire/taskwire-client/internal/infrastructure/logging"
)

// ConnState is the event-bus connection state.
type ConnState string

const (
	StateDisconnected ConnState = "DISCONNECTED"
	StateConnecting   ConnState = "CONNECTING"
	StateConnected    ConnState = "CONNECTED"
	StateReconnecting ConnState = "RECONNECTING"
)

// EventHandler receives the raw payload of a named event. Handlers decode
// the payload themselves and must tolerate duplicate delivery.
type EventHandler func(payload json.RawMessage)

// Listener is an opaque registration handle. Removal is by handle
// identity, so two registrations of the same function never interfere.
type Listener struct {
	event domain.EventType
	fn    EventHandler
}

// EventBusConfig tunes reconnection and emit buffering.
type EventBusConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	EmitQueueSize  int
}

// DefaultEventBusConfig returns the standard tuning: 1s backoff doubling
// to a 30s cap, and room for 128 buffered emits during an outage.
func DefaultEventBusConfig() EventBusConfig {
	return EventBusConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		EmitQueueSize:  128,
	}
}

func (c EventBusConfig) withDefaults() EventBusConfig {
	def := DefaultEventBusConfig()
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = def.MaxBackoff
	}
	if c.EmitQueueSize <= 0 {
		c.EmitQueueSize = def.EmitQueueSize
	}
	return c
}

// EventBus owns the one logical connection to the push-event service. It
// exposes typed subscribe/unsubscribe and emit operations and manages the
// connect/reconnect/backoff lifecycle. Transient network failure is never
// surfaced to callers; the only fatal conditions are an explicit Close and
// a missing or expired credential.
type EventBus struct {
	transport ports.Transport
	creds     ports.CredentialSource
	cfg       EventBusConfig
	logger    *slog.Logger

	mu             sync.Mutex
	state          ConnState
	listeners      map[domain.EventType][]*Listener
	queue          []domain.Event
	backoff        time.Duration
	retryTimer     *time.Timer
	closed         bool
	connectedHooks []func()
}

// NewEventBus creates an event bus over the given transport. The bus
// registers itself as the transport's callback target.
func NewEventBus(transport ports.Transport, creds ports.CredentialSource, cfg EventBusConfig, logger *slog.Logger) *EventBus {
	b := &EventBus{
		transport: transport,
		creds:     creds,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "event_bus"),
		state:     StateDisconnected,
		listeners: make(map[domain.EventType][]*Listener),
	}
	b.backoff = b.cfg.InitialBackoff

	transport.SetCallbacks(ports.TransportCallbacks{
		OnOpen:    b.handleOpen,
		OnClose:   b.handleClose,
		OnMessage: b.handleMessage,
	})
	return b
}

// State returns the current connection state.
func (b *EventBus) State() ConnState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Connect establishes the transport if not already connected or
// connecting. It is idempotent: a second call while a connection attempt
// is underway is a no-op and never opens a second transport. A transient
// dial failure schedules a retry and returns nil; only a missing or
// expired credential is returned as an error.
func (b *EventBus) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.ErrClosed
	}
	if b.state == StateConnected || b.state == StateConnecting {
		b.mu.Unlock()
		return nil
	}
	b.state = StateConnecting
	b.mu.Unlock()

	return b.dial(ctx)
}

// Close tears down the transport and stops the retry loop. Listener
// registrations and the room membership they serve survive in their
// declared form, but nothing is active until a new session connects.
func (b *EventBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.state = StateDisconnected
	if b.retryTimer != nil {
		b.retryTimer.Stop()
		b.retryTimer = nil
	}
	b.queue = nil
	b.mu.Unlock()

	b.transport.Disconnect()
	b.logger.Info("event bus closed")
}

// On registers a handler for a named event and returns its removal
// handle. Handlers for one event run in registration order. Registration
// is accepted in any connection state.
func (b *EventBus) On(t domain.EventType, fn EventHandler) *Listener {
	l := &Listener{event: t, fn: fn}
	b.mu.Lock()
	b.listeners[t] = append(b.listeners[t], l)
	b.mu.Unlock()
	return l
}

// Off removes exactly the given listener. Other listeners for the same
// event, including ones wrapping the same function, are untouched. Safe
// to call with a listener that was already removed.
func (b *EventBus) Off(l *Listener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[l.event]
	for i, candidate := range current {
		if candidate == l {
			b.listeners[l.event] = append(current[:i], current[i+1:]...)
			if len(b.listeners[l.event]) == 0 {
				delete(b.listeners, l.event)
			}
			return
		}
	}
}

// Emit sends a fire-and-forget event. While connecting or reconnecting
// the event is buffered, bounded by the configured queue size with the
// oldest entries dropped, and flushed once connected — after room
// membership has been re-established.
func (b *EventBus) Emit(t domain.EventType, payload any) {
	ev, err := domain.NewEvent(t, payload)
	if err != nil {
		b.logger.Warn("dropping unmarshalable emit", "event_type", t, "error", err)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.state != StateConnected {
		if len(b.queue) >= b.cfg.EmitQueueSize {
			dropped := b.queue[0]
			b.queue = b.queue[1:]
			b.logger.Warn("emit queue full, dropping oldest event", "event_type", dropped.Type)
		}
		b.queue = append(b.queue, ev)
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	if err := b.transport.Send(ev); err != nil {
		b.logger.Warn("emit failed", "event_type", t, "error", err)
	}
}

// send transmits immediately when connected; unlike Emit it is never
// buffered. Used for room membership traffic, which has its own replay.
func (b *EventBus) send(ev domain.Event) error {
	b.mu.Lock()
	connected := b.state == StateConnected
	b.mu.Unlock()

	if !connected {
		return apperrors.ErrNotConnected
	}
	return b.transport.Send(ev)
}

// addConnectedHook registers a function run on every transition to
// Connected, before the buffered emit queue is flushed. Hooks run in
// registration order.
func (b *EventBus) addConnectedHook(hook func()) {
	b.mu.Lock()
	b.connectedHooks = append(b.connectedHooks, hook)
	b.mu.Unlock()
}

// --- transport callbacks ---

func (b *EventBus) handleOpen() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = StateConnected
	b.backoff = b.cfg.InitialBackoff
	hooks := append([]func(){}, b.connectedHooks...)
	queued := b.queue
	b.queue = nil
	b.mu.Unlock()

	// Room rejoin (hooks) strictly precedes the flush of buffered emits.
	for _, hook := range hooks {
		hook()
	}
	for _, ev := range queued {
		if err := b.transport.Send(ev); err != nil {
			b.logger.Warn("failed to flush buffered emit", "event_type", ev.Type, "error", err)
		}
	}

	b.logger.Info("connected", "flushed_emits", len(queued))
}

func (b *EventBus) handleClose(reason error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.mu.Unlock()

	b.logger.Warn("transport closed, scheduling reconnect", "reason", reason)
	b.scheduleRetry()
}

func (b *EventBus) handleMessage(ev domain.Event) {
	b.mu.Lock()
	registered := b.listeners[ev.Type]
	handlers := append([]*Listener{}, registered...)
	b.mu.Unlock()

	if len(handlers) == 0 {
		b.logger.Debug("event with no listeners", "event_type", ev.Type)
		return
	}

	for _, l := range handlers {
		b.invoke(l, ev)
	}
}

// invoke runs one handler, isolating a panic so a broken listener cannot
// stop dispatch to the others.
func (b *EventBus) invoke(l *Listener, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogPanic(b.logger.With("event_type", ev.Type), r)
		}
	}()
	l.fn(ev.Payload)
}

// --- reconnection ---

func (b *EventBus) dial(ctx context.Context) error {
	token, err := b.creds.Token(ctx)
	if err == nil {
		err = auth.Validate(token)
	}
	if err != nil {
		b.mu.Lock()
		b.state = StateDisconnected
		b.mu.Unlock()
		b.logger.Error("cannot connect without a valid credential", "error", err)
		return fmt.Errorf("event bus connect: %w", err)
	}

	if err := b.transport.Connect(ctx, token); err != nil {
		b.logger.Warn("dial failed", "error", err)
		b.scheduleRetry()
		return nil
	}
	// Success is signalled through the OnOpen callback.
	return nil
}

func (b *EventBus) scheduleRetry() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.state = StateReconnecting
	delay := b.backoff
	b.backoff = min(b.backoff*2, b.cfg.MaxBackoff)
	if b.retryTimer != nil {
		b.retryTimer.Stop()
	}
	b.retryTimer = time.AfterFunc(delay, b.retry)
	b.mu.Unlock()

	b.logger.Info("reconnect scheduled", "delay", delay)
}

func (b *EventBus) retry() {
	b.mu.Lock()
	if b.closed || b.state != StateReconnecting {
		b.mu.Unlock()
		return
	}
	b.state = StateConnecting
	b.mu.Unlock()

	// A credential that expired mid-outage ends the retry loop; the
	// session-invalidation path takes over from there.
	_ = b.dial(context.Background())
}
