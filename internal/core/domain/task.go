package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Pre-defined errors for domain-specific validation.
var (
	ErrTitleRequired           = errors.New("title is required")
	ErrWorkspaceRequired       = errors.New("workspace id is required")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// TaskStatus represents the possible states of a task on the board.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

// TaskPriority represents the urgency of a task.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
)

// Task is the core durable entity kept in sync with the server of record.
type Task struct {
	ID          int64        `json:"id"`
	WorkspaceID int64        `json:"workspace_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      TaskStatus   `json:"status"`
	Priority    TaskPriority `json:"priority"`
	AssigneeID  *uuid.UUID   `json:"assignee_id,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   *time.Time   `json:"updated_at,omitempty"`
}

// NewTask is a factory function to create a valid new task.
func NewTask(workspaceID int64, title, description string, priority TaskPriority) (*Task, error) {
	if title == "" {
		return nil, ErrTitleRequired
	}
	if workspaceID <= 0 {
		return nil, ErrWorkspaceRequired
	}
	if priority == "" {
		priority = PriorityMedium
	}

	return &Task{
		WorkspaceID: workspaceID,
		Title:       title,
		Description: description,
		Status:      StatusTodo, // Default status
		Priority:    priority,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// UpdateStatus changes the task's status, enforcing business rules.
func (t *Task) UpdateStatus(newStatus TaskStatus) error {
	// Defines the valid state transitions.
	validTransitions := map[TaskStatus][]TaskStatus{
		StatusTodo:       {StatusInProgress, StatusDone},
		StatusInProgress: {StatusTodo, StatusDone},
		StatusDone:       {StatusTodo, StatusInProgress},
	}

	allowed, ok := validTransitions[t.Status]
	if !ok {
		return ErrInvalidStatusTransition
	}

	for _, s := range allowed {
		if s == newStatus {
			t.Status = newStatus
			now := time.Now().UTC()
			t.UpdatedAt = &now
			return nil
		}
	}

	return ErrInvalidStatusTransition
}

// EntityID returns the task's stable identifier.
func (t *Task) EntityID() int64 { return t.ID }

// Clone returns a deep copy of the task.
func (t *Task) Clone() Entity {
	out := *t
	if t.AssigneeID != nil {
		id := *t.AssigneeID
		out.AssigneeID = &id
	}
	if t.UpdatedAt != nil {
		at := *t.UpdatedAt
		out.UpdatedAt = &at
	}
	return &out
}

// Field returns the named patchable field's current value.
func (t *Task) Field(name string) (any, bool) {
	switch name {
	case "title":
		return t.Title, true
	case "description":
		return t.Description, true
	case "status":
		return t.Status, true
	case "priority":
		return t.Priority, true
	case "assignee_id":
		return t.AssigneeID, true
	case "workspace_id":
		return t.WorkspaceID, true
	default:
		return nil, false
	}
}

// SetField assigns the named patchable field. It accepts both the typed
// domain values and the plain strings/numbers JSON decoding produces.
func (t *Task) SetField(name string, value any) bool {
	switch name {
	case "title":
		s, ok := value.(string)
		if !ok {
			return false
		}
		t.Title = s
	case "description":
		s, ok := value.(string)
		if !ok {
			return false
		}
		t.Description = s
	case "status":
		switch v := value.(type) {
		case TaskStatus:
			t.Status = v
		case string:
			t.Status = TaskStatus(v)
		default:
			return false
		}
	case "priority":
		switch v := value.(type) {
		case TaskPriority:
			t.Priority = v
		case string:
			t.Priority = TaskPriority(v)
		default:
			return false
		}
	case "assignee_id":
		switch v := value.(type) {
		case nil:
			t.AssigneeID = nil
		case *uuid.UUID:
			t.AssigneeID = v
		case uuid.UUID:
			t.AssigneeID = &v
		case string:
			id, err := uuid.Parse(v)
			if err != nil {
				return false
			}
			t.AssigneeID = &id
		default:
			return false
		}
	case "workspace_id":
		switch v := value.(type) {
		case int64:
			t.WorkspaceID = v
		case float64:
			t.WorkspaceID = int64(v)
		default:
			return false
		}
	default:
		return false
	}
	return true
}
