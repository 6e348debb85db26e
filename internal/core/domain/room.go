package domain

import "fmt"

// RoomKind scopes a subscription channel to one entity type.
type RoomKind string

const (
	RoomWorkspace RoomKind = "workspace"
	RoomTask      RoomKind = "task"
)

// Room is a logical subscription channel, e.g. workspace:42 or task:1007.
type Room struct {
	Kind RoomKind
	ID   int64
}

func (r Room) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}
