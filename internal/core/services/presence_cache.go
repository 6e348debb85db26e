package services

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskwire/taskwire-client/internal/core/domain"
)

// PresenceCacheConfig holds the per-kind time-to-live values.
type PresenceCacheConfig struct {
	CursorTTL time.Duration
	TypingTTL time.Duration
}

// DefaultPresenceCacheConfig returns the standard TTLs: cursors vanish
// after 3 seconds without movement, typing indicators after 5.
func DefaultPresenceCacheConfig() PresenceCacheConfig {
	return PresenceCacheConfig{
		CursorTTL: 3 * time.Second,
		TypingTTL: 5 * time.Second,
	}
}

func (c PresenceCacheConfig) withDefaults() PresenceCacheConfig {
	def := DefaultPresenceCacheConfig()
	if c.CursorTTL <= 0 {
		c.CursorTTL = def.CursorTTL
	}
	if c.TypingTTL <= 0 {
		c.TypingTTL = def.TypingTTL
	}
	return c
}

type presenceKey struct {
	subject uuid.UUID
	kind    domain.PresenceKind
}

type presenceEntry struct {
	value      any
	recordedAt time.Time
	timer      *time.Timer
}

// PresenceCache is the keyed ephemeral store for cursor and typing
// signals. Entries are last-write-wins per (subject, kind) and expire on
// a per-entry timer that only a fresh Record re-arms: a user who stops
// moving the pointer silently disappears after the TTL, which avoids
// stale ghost cursors if a leave or disconnect event is missed. Nothing
// here is persisted or reconciled.
type PresenceCache struct {
	cfg    PresenceCacheConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[presenceKey]*presenceEntry
	closed  bool

	now func() time.Time
}

// NewPresenceCache creates an empty cache.
func NewPresenceCache(cfg PresenceCacheConfig, logger *slog.Logger) *PresenceCache {
	return &PresenceCache{
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "presence_cache"),
		entries: make(map[presenceKey]*presenceEntry),
		now:     time.Now,
	}
}

// Record upserts an entry and restarts its expiry timer.
func (c *PresenceCache) Record(subject uuid.UUID, kind domain.PresenceKind, value any) {
	key := presenceKey{subject: subject, kind: kind}
	ttl := c.ttlFor(kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	if existing, ok := c.entries[key]; ok {
		existing.timer.Stop()
	}

	recordedAt := c.now()
	entry := &presenceEntry{value: value, recordedAt: recordedAt}
	entry.timer = time.AfterFunc(ttl, func() {
		c.expire(key, recordedAt)
	})
	c.entries[key] = entry
}

// Clear drops an entry immediately, e.g. on an explicit typing-stop.
func (c *PresenceCache) Clear(subject uuid.UUID, kind domain.PresenceKind) {
	key := presenceKey{subject: subject, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		entry.timer.Stop()
		delete(c.entries, key)
	}
}

// Get returns the currently live entries of one kind, recomputed on each
// call and sorted by subject for stable output.
func (c *PresenceCache) Get(kind domain.PresenceKind) []domain.PresenceEntry {
	ttl := c.ttlFor(kind)

	c.mu.Lock()
	now := c.now()
	var out []domain.PresenceEntry
	for key, entry := range c.entries {
		if key.kind != kind {
			continue
		}
		// The timer usually gets there first, but a slow timer must not
		// leak an expired entry into a read.
		if now.Sub(entry.recordedAt) >= ttl {
			continue
		}
		out = append(out, domain.PresenceEntry{
			SubjectID:  key.subject,
			Kind:       kind,
			Value:      entry.value,
			RecordedAt: entry.recordedAt,
		})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].SubjectID.String() < out[j].SubjectID.String()
	})
	return out
}

// Len returns the number of live entries of one kind.
func (c *PresenceCache) Len(kind domain.PresenceKind) int {
	return len(c.Get(kind))
}

// Close stops all expiry timers and drops every entry.
func (c *PresenceCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for key, entry := range c.entries {
		entry.timer.Stop()
		delete(c.entries, key)
	}
}

func (c *PresenceCache) ttlFor(kind domain.PresenceKind) time.Duration {
	if kind == domain.PresenceTyping {
		return c.cfg.TypingTTL
	}
	return c.cfg.CursorTTL
}

// expire removes the entry unless a newer Record replaced it since the
// timer was armed.
func (c *PresenceCache) expire(key presenceKey, recordedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.entries[key]; ok && current.recordedAt.Equal(recordedAt) {
		delete(c.entries, key)
	}
}
