package services

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
)

// PendingMutation records one optimistic local edit that has not yet been
// confirmed or rolled back. The snapshot holds the prior values of exactly
// the fields the patch touches, never the whole entity, so concurrent
// in-flight mutations on one entity compose correctly.
type PendingMutation struct {
	Token       uuid.UUID
	EntityID    int64
	Patch       domain.Patch
	Snapshot    domain.Patch
	SubmittedAt time.Time
}

// EntityStore is the authoritative client-side cache for one entity kind.
//
// It keeps a confirmed baseline per entity plus an ordered overlay of
// pending optimistic mutations. A read always sees the last confirmed
// server state with every still-pending patch applied on top, in
// submission order. Server state (confirm or remote push) only ever
// replaces the baseline; pending local edits keep winning for the fields
// they touch until they individually resolve.
type EntityStore struct {
	kind   string
	strict bool
	logger *slog.Logger

	mu        sync.RWMutex
	confirmed map[int64]domain.Entity
	pending   []*PendingMutation

	// discarded remembers tokens whose entity was removed while the
	// mutation was still in flight; their late confirm/rollback is a
	// silent no-op rather than a programming error.
	discarded map[uuid.UUID]struct{}
}

// NewEntityStore creates an empty store. In strict mode (development
// builds) resolving an unknown mutation token panics; in production it
// logs and no-ops so a UI bug cannot cascade.
func NewEntityStore(kind string, strict bool, logger *slog.Logger) *EntityStore {
	return &EntityStore{
		kind:      kind,
		strict:    strict,
		logger:    logger.With("component", "entity_store", "kind", kind),
		confirmed: make(map[int64]domain.Entity),
		discarded: make(map[uuid.UUID]struct{}),
	}
}

// Get returns the current visible state of the entity: the confirmed
// baseline overlaid with every pending optimistic patch.
func (s *EntityStore) Get(id int64) (domain.Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleLocked(id)
}

// SetConfirmed installs or replaces an entity's confirmed baseline without
// touching pending mutations. Used to seed the store and for entities the
// server just created.
func (s *EntityStore) SetConfirmed(e domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed[e.EntityID()] = e.Clone()
}

// ApplyOptimistic applies the patch to the visible entity immediately and
// returns a token identifying the pending mutation. The prior values of
// the touched fields are captured so the edit can be undone field-by-field.
func (s *EntityStore) ApplyOptimistic(id int64, patch domain.Patch) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	visible, ok := s.visibleLocked(id)
	if !ok {
		if s.strict {
			panic(fmt.Sprintf("entity store (%s): optimistic patch for unknown entity %d", s.kind, id))
		}
		s.logger.Warn("optimistic patch for unknown entity", "entity_id", id)
		return uuid.Nil, apperrors.ErrEntityNotFound
	}

	// Drop fields the entity does not have; a patch is best-effort and a
	// stray field must not poison the snapshot.
	applied := make(domain.Patch, len(patch))
	for name, value := range patch {
		if _, known := visible.Field(name); !known {
			s.logger.Warn("dropping unknown patch field", "entity_id", id, "field", name)
			continue
		}
		applied[name] = value
	}

	pm := &PendingMutation{
		Token:       uuid.New(),
		EntityID:    id,
		Patch:       applied,
		Snapshot:    domain.SnapshotFields(visible, applied),
		SubmittedAt: time.Now().UTC(),
	}
	s.pending = append(s.pending, pm)

	s.logger.Debug("optimistic mutation applied",
		"entity_id", id,
		"token", pm.Token,
		"fields", len(applied),
	)
	return pm.Token, nil
}

// Confirm resolves a pending mutation against the server's authoritative
// entity: the server state becomes the new baseline and every *other*
// still-pending mutation for that entity is re-applied on top. The
// confirmed patch itself is never applied twice.
func (s *EntityStore) Confirm(token uuid.UUID, server domain.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, idx := s.findLocked(token)
	if pm == nil {
		return s.unknownTokenLocked("confirm", token)
	}

	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	s.confirmed[server.EntityID()] = server.Clone()

	s.logger.Debug("mutation confirmed",
		"entity_id", pm.EntityID,
		"token", token,
		"still_pending", s.pendingCountLocked(pm.EntityID),
	)
	return nil
}

// Rollback undoes a pending mutation: the fields it touched revert to the
// state beneath it and every other pending mutation for the entity stays
// applied.
func (s *EntityStore) Rollback(token uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pm, idx := s.findLocked(token)
	if pm == nil {
		return s.unknownTokenLocked("rollback", token)
	}

	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)

	s.logger.Debug("mutation rolled back",
		"entity_id", pm.EntityID,
		"token", token,
		"still_pending", s.pendingCountLocked(pm.EntityID),
	)
	return nil
}

// MergeRemote applies a pushed remote change as the new confirmed baseline.
// Pending local mutations stay overlaid: for any field both sides touched,
// the local in-flight edit keeps winning until it confirms or rolls back.
// Delivering the same entity twice is harmless by construction.
func (s *EntityStore) MergeRemote(server domain.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := server.EntityID()
	s.confirmed[id] = server.Clone()

	if n := s.pendingCountLocked(id); n > 0 {
		s.logger.Debug("remote merge under pending mutations", "entity_id", id, "pending", n)
	}
}

// Remove optimistically deletes the entity, extracting its baseline and
// pending mutations so a failed delete can restore both. The extracted
// mutations' tokens become discardable: a late confirm or rollback for
// them is a quiet no-op.
func (s *EntityStore) Remove(id int64) (domain.Entity, []*PendingMutation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.confirmed[id]
	delete(s.confirmed, id)

	extracted := s.extractPendingLocked(id)
	return removed, extracted
}

// Restore reinstates an entity removed by Remove, re-appending its pending
// mutations in their original relative order.
func (s *EntityStore) Restore(e domain.Entity, pendings []*PendingMutation) {
	if e == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.confirmed[e.EntityID()] = e.Clone()
	for _, pm := range pendings {
		delete(s.discarded, pm.Token)
		s.pending = append(s.pending, pm)
	}
}

// RemoveRemote drops an entity deleted by another collaborator, discarding
// any local in-flight mutations for it.
func (s *EntityStore) RemoveRemote(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.confirmed, id)
	if extracted := s.extractPendingLocked(id); len(extracted) > 0 {
		s.logger.Warn("remote delete discarded pending mutations", "entity_id", id, "discarded", len(extracted))
	}
}

// PendingCount returns the number of in-flight mutations for the entity.
func (s *EntityStore) PendingCount(id int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingCountLocked(id)
}

// Size returns the number of entities with a confirmed baseline.
func (s *EntityStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.confirmed)
}

// PendingTotal returns the number of in-flight mutations across all entities.
func (s *EntityStore) PendingTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// --- internal ---

func (s *EntityStore) visibleLocked(id int64) (domain.Entity, bool) {
	base, ok := s.confirmed[id]
	if !ok {
		return nil, false
	}
	visible := base.Clone()
	for _, pm := range s.pending {
		if pm.EntityID != id {
			continue
		}
		if rejected := domain.ApplyPatch(visible, pm.Patch); len(rejected) > 0 {
			s.logger.Warn("patch fields rejected by entity", "entity_id", id, "fields", rejected)
		}
	}
	return visible, true
}

func (s *EntityStore) findLocked(token uuid.UUID) (*PendingMutation, int) {
	for i, pm := range s.pending {
		if pm.Token == token {
			return pm, i
		}
	}
	return nil, -1
}

func (s *EntityStore) pendingCountLocked(id int64) int {
	n := 0
	for _, pm := range s.pending {
		if pm.EntityID == id {
			n++
		}
	}
	return n
}

// extractPendingLocked removes and returns the entity's pending mutations,
// marking their tokens as discarded.
func (s *EntityStore) extractPendingLocked(id int64) []*PendingMutation {
	var extracted []*PendingMutation
	remaining := s.pending[:0]
	for _, pm := range s.pending {
		if pm.EntityID == id {
			extracted = append(extracted, pm)
			s.discarded[pm.Token] = struct{}{}
		} else {
			remaining = append(remaining, pm)
		}
	}
	s.pending = remaining
	return extracted
}

func (s *EntityStore) unknownTokenLocked(op string, token uuid.UUID) error {
	if _, ok := s.discarded[token]; ok {
		// The entity was deleted while this mutation was in flight.
		delete(s.discarded, token)
		s.logger.Debug("resolution for discarded mutation", "op", op, "token", token)
		return nil
	}
	if s.strict {
		panic(fmt.Sprintf("entity store (%s): %s with unknown mutation token %s", s.kind, op, token))
	}
	s.logger.Warn("unknown mutation token", "op", op, "token", token)
	return apperrors.ErrUnknownMutation
}
