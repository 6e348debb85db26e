package domain

import (
	"errors"
	"time"
)

// ErrNameRequired is returned when a workspace is created without a name.
var ErrNameRequired = errors.New("name is required")

// Workspace groups tasks and scopes room subscriptions.
type Workspace struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

// NewWorkspace is a factory function to create a valid new workspace.
func NewWorkspace(name, description string) (*Workspace, error) {
	if name == "" {
		return nil, ErrNameRequired
	}
	return &Workspace{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// EntityID returns the workspace's stable identifier.
func (w *Workspace) EntityID() int64 { return w.ID }

// Clone returns a deep copy of the workspace.
func (w *Workspace) Clone() Entity {
	out := *w
	if w.UpdatedAt != nil {
		at := *w.UpdatedAt
		out.UpdatedAt = &at
	}
	return &out
}

// Field returns the named patchable field's current value.
func (w *Workspace) Field(name string) (any, bool) {
	switch name {
	case "name":
		return w.Name, true
	case "description":
		return w.Description, true
	case "color":
		return w.Color, true
	default:
		return nil, false
	}
}

// SetField assigns the named patchable field.
func (w *Workspace) SetField(name string, value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	switch name {
	case "name":
		w.Name = s
	case "description":
		w.Description = s
	case "color":
		w.Color = s
	default:
		return false
	}
	return true
}
