package domain

import (
	"time"

	"github.com/google/uuid"
)

// PresenceKind distinguishes the ephemeral signals a user can emit.
type PresenceKind string

const (
	PresenceCursor PresenceKind = "cursor"
	PresenceTyping PresenceKind = "typing"
)

// PresenceEntry is a short-lived, self-expiring record of another user's
// live activity. Entries are last-write-wins per (subject, kind) and are
// never persisted or reconciled against durable entities.
type PresenceEntry struct {
	SubjectID  uuid.UUID
	Kind       PresenceKind
	Value      any
	RecordedAt time.Time
}
