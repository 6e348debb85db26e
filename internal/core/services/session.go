package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

// SessionConfig collects the tuning for one session's realtime core.
type SessionConfig struct {
	// Strict enables development-build assertions (unknown mutation
	// tokens panic instead of no-oping).
	Strict bool

	Bus       EventBusConfig
	Presence  PresenceCacheConfig
	Publisher PresencePublisherConfig
}

// Session owns the realtime core for one authenticated user: the event
// bus, room membership, entity stores, mutation coordinator and presence
// cache. It is created at login and closed at logout; nothing here
// outlives the session.
type Session struct {
	userID      uuid.UUID
	bus         *EventBus
	rooms       *RoomTracker
	presence    *PresenceCache
	publisher   *PresencePublisher
	tasks       *EntityStore
	workspaces  *EntityStore
	coordinator *MutationCoordinator
	logger      *slog.Logger

	listeners []*Listener
}

// NewSession wires the realtime core. Presence events flow straight from
// the bus into the presence cache; entity events route through the
// mutation coordinator into the stores. onUnauthorized is the external
// session-invalidation path and may be nil.
func NewSession(
	transport ports.Transport,
	creds ports.CredentialSource,
	taskAPI ports.TaskAPI,
	workspaceAPI ports.WorkspaceAPI,
	userID uuid.UUID,
	cfg SessionConfig,
	onUnauthorized func(),
	logger *slog.Logger,
) *Session {
	bus := NewEventBus(transport, creds, cfg.Bus, logger)
	tasks := NewEntityStore("task", cfg.Strict, logger)
	workspaces := NewEntityStore("workspace", cfg.Strict, logger)

	s := &Session{
		userID:      userID,
		bus:         bus,
		rooms:       NewRoomTracker(bus, logger),
		presence:    NewPresenceCache(cfg.Presence, logger),
		publisher:   NewPresencePublisher(bus, userID, cfg.Publisher, logger),
		tasks:       tasks,
		workspaces:  workspaces,
		coordinator: NewMutationCoordinator(tasks, workspaces, taskAPI, workspaceAPI, onUnauthorized, logger),
		logger:      logger.With("component", "session", "user_id", userID.String()),
	}

	s.listen(domain.EventTaskCreated, s.coordinator.HandleTaskUpserted)
	s.listen(domain.EventTaskUpdated, s.coordinator.HandleTaskUpserted)
	s.listen(domain.EventTaskDeleted, s.coordinator.HandleTaskDeleted)
	s.listen(domain.EventWorkspaceUpdated, s.coordinator.HandleWorkspaceUpdated)

	s.listen(domain.EventUserCursor, s.handleCursor)
	s.listen(domain.EventUserTypingStart, s.handleTypingStart)
	s.listen(domain.EventUserTypingStop, s.handleTypingStop)

	return s
}

// Start connects the event bus. Transient failures are retried
// internally; only a missing or expired credential is returned.
func (s *Session) Start(ctx context.Context) error {
	s.logger.Info("session starting")
	return s.bus.Connect(ctx)
}

// Close tears the session down: handlers unregistered, presence timers
// stopped, transport closed. The session cannot be restarted.
func (s *Session) Close() {
	for _, l := range s.listeners {
		s.bus.Off(l)
	}
	s.listeners = nil
	s.presence.Close()
	s.bus.Close()
	s.logger.Info("session closed")
}

// --- accessors for view code ---

// State returns the connection state, e.g. for an offline indicator.
func (s *Session) State() ConnState { return s.bus.State() }

// Tasks exposes the task store for reads.
func (s *Session) Tasks() *EntityStore { return s.tasks }

// Workspaces exposes the workspace store for reads.
func (s *Session) Workspaces() *EntityStore { return s.workspaces }

// Presence exposes the presence cache for reads.
func (s *Session) Presence() *PresenceCache { return s.presence }

// Rooms exposes room membership management.
func (s *Session) Rooms() *RoomTracker { return s.rooms }

// Publisher exposes this user's outbound presence signals.
func (s *Session) Publisher() *PresencePublisher { return s.publisher }

// Bus exposes the event bus for ad-hoc listener registration by views.
func (s *Session) Bus() *EventBus { return s.bus }

// --- mutations ---

// CreateTask creates a task through the coordinator.
func (s *Session) CreateTask(ctx context.Context, workspaceID int64, title, description string, priority domain.TaskPriority) (*domain.Task, error) {
	return s.coordinator.CreateTask(ctx, workspaceID, title, description, priority)
}

// UpdateTask edits a task optimistically.
func (s *Session) UpdateTask(ctx context.Context, id int64, patch domain.Patch) error {
	return s.coordinator.UpdateTask(ctx, id, patch)
}

// DeleteTask deletes a task optimistically.
func (s *Session) DeleteTask(ctx context.Context, id int64) error {
	return s.coordinator.DeleteTask(ctx, id)
}

// UpdateWorkspace edits a workspace optimistically.
func (s *Session) UpdateWorkspace(ctx context.Context, id int64, patch domain.Patch) error {
	return s.coordinator.UpdateWorkspace(ctx, id, patch)
}

// --- presence event handlers ---

func (s *Session) handleCursor(payload json.RawMessage) {
	var p domain.CursorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("dropping malformed cursor event", "error", err)
		return
	}
	if p.UserID == uuid.Nil || p.UserID == s.userID {
		// Our own cursor echoes back through the room; ignore it.
		return
	}
	s.presence.Record(p.UserID, domain.PresenceCursor, p)
}

func (s *Session) handleTypingStart(payload json.RawMessage) {
	var p domain.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("dropping malformed typing event", "error", err)
		return
	}
	if p.UserID == uuid.Nil || p.UserID == s.userID {
		return
	}
	s.presence.Record(p.UserID, domain.PresenceTyping, p)
}

func (s *Session) handleTypingStop(payload json.RawMessage) {
	var p domain.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Warn("dropping malformed typing event", "error", err)
		return
	}
	s.presence.Clear(p.UserID, domain.PresenceTyping)
}

func (s *Session) listen(t domain.EventType, fn EventHandler) {
	s.listeners = append(s.listeners, s.bus.On(t, fn))
}
