package domain

import (
	"encoding/json"

	"github.com/google/uuid"
)

// EventType defines the type of real-time event.
type EventType string

const (
	EventTaskCreated      EventType = "task:created"
	EventTaskUpdated      EventType = "task:updated"
	EventTaskDeleted      EventType = "task:deleted"
	EventWorkspaceUpdated EventType = "workspace:updated"

	EventUserCursor      EventType = "user:cursor"
	EventUserTypingStart EventType = "user:typing:start"
	EventUserTypingStop  EventType = "user:typing:stop"

	EventRoomJoin  EventType = "room:join"
	EventRoomLeave EventType = "room:leave"
)

// Event is the envelope exchanged with the push-event service. Entity
// events carry the full updated entity, never a diff, so a receiver can
// treat the payload as a replacement baseline.
type Event struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewEvent marshals the payload into an event envelope.
func NewEvent(t EventType, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, Payload: raw}, nil
}

// TaskDeletedPayload identifies the task removed by a task:deleted event.
type TaskDeletedPayload struct {
	ID int64 `json:"id"`
}

// CursorPayload carries one user's live pointer position.
type CursorPayload struct {
	UserID uuid.UUID `json:"user_id"`
	X      float64   `json:"x"`
	Y      float64   `json:"y"`
}

// TypingPayload signals that a user started or stopped typing on a task.
type TypingPayload struct {
	UserID uuid.UUID `json:"user_id"`
	TaskID int64     `json:"task_id"`
}

// RoomPayload identifies the room a join/leave event targets.
type RoomPayload struct {
	Kind RoomKind `json:"kind"`
	ID   int64    `json:"id"`
}
