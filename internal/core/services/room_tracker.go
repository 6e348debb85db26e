package services

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/taskwire/taskwire-client/internal/core/domain"
)

// RoomTracker keeps the declared room membership set — the rooms the UI
// currently wants — and converges the server's view to it. Joins are
// reference-counted so several views can share an interest; the last
// Leave actually drops the room. On every reconnect the whole declared
// set is re-joined, so room interest is never silently lost across a
// network blip.
type RoomTracker struct {
	bus    *EventBus
	logger *slog.Logger

	mu       sync.Mutex
	declared map[domain.Room]int
}

// NewRoomTracker creates a tracker bound to the bus. It hooks the bus's
// Connected transition, which the bus guarantees runs before any buffered
// emits are flushed.
func NewRoomTracker(bus *EventBus, logger *slog.Logger) *RoomTracker {
	t := &RoomTracker{
		bus:      bus,
		logger:   logger.With("component", "room_tracker"),
		declared: make(map[domain.Room]int),
	}
	bus.addConnectedHook(t.rejoinAll)
	return t
}

// Join declares interest in a room. When connected the join is sent
// immediately; otherwise the declared set alone carries it to the next
// Connected transition.
func (t *RoomTracker) Join(kind domain.RoomKind, id int64) {
	room := domain.Room{Kind: kind, ID: id}

	t.mu.Lock()
	t.declared[room]++
	first := t.declared[room] == 1
	t.mu.Unlock()

	if !first {
		return
	}

	if err := t.sendRoomEvent(domain.EventRoomJoin, room); err != nil {
		// Not connected; rejoinAll will replay this room.
		t.logger.Debug("join deferred until connected", "room", room.String())
		return
	}
	t.logger.Debug("joined room", "room", room.String())
}

// Leave withdraws one declaration of interest. The room is actually left
// only when the last interested view has gone. Safe to call for a room
// that was never joined.
func (t *RoomTracker) Leave(kind domain.RoomKind, id int64) {
	room := domain.Room{Kind: kind, ID: id}

	t.mu.Lock()
	count, ok := t.declared[room]
	if !ok {
		t.mu.Unlock()
		return
	}
	if count > 1 {
		t.declared[room] = count - 1
		t.mu.Unlock()
		return
	}
	delete(t.declared, room)
	t.mu.Unlock()

	if err := t.sendRoomEvent(domain.EventRoomLeave, room); err != nil {
		// Disconnected; the server-side membership died with the
		// transport, so there is nothing to undo.
		return
	}
	t.logger.Debug("left room", "room", room.String())
}

// Membership returns the declared room set, sorted for stable output.
func (t *RoomTracker) Membership() []domain.Room {
	t.mu.Lock()
	rooms := make([]domain.Room, 0, len(t.declared))
	for room := range t.declared {
		rooms = append(rooms, room)
	}
	t.mu.Unlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Kind != rooms[j].Kind {
			return rooms[i].Kind < rooms[j].Kind
		}
		return rooms[i].ID < rooms[j].ID
	})
	return rooms
}

// rejoinAll re-issues a join for every declared room. Runs on every
// transition to Connected.
func (t *RoomTracker) rejoinAll() {
	rooms := t.Membership()
	for _, room := range rooms {
		if err := t.sendRoomEvent(domain.EventRoomJoin, room); err != nil {
			t.logger.Warn("rejoin failed", "room", room.String(), "error", err)
		}
	}
	if len(rooms) > 0 {
		t.logger.Info("room membership re-established", "rooms", len(rooms))
	}
}

func (t *RoomTracker) sendRoomEvent(eventType domain.EventType, room domain.Room) error {
	ev, err := domain.NewEvent(eventType, domain.RoomPayload{Kind: room.Kind, ID: room.ID})
	if err != nil {
		return err
	}
	return t.bus.send(ev)
}
