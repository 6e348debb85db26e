package services_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	"github.com/taskwire/taskwire-client/internal/core/services"
)

func newPresenceCache(cursorTTL, typingTTL time.Duration) *services.PresenceCache {
	return services.NewPresenceCache(services.PresenceCacheConfig{
		CursorTTL: cursorTTL,
		TypingTTL: typingTTL,
	}, testLogger())
}

func TestPresenceCache_EntriesExpire(t *testing.T) {
	cache := newPresenceCache(40*time.Millisecond, 40*time.Millisecond)
	defer cache.Close()

	user := uuid.New()
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user, X: 10, Y: 20})

	entries := cache.Get(domain.PresenceCursor)
	require.Len(t, entries, 1)
	assert.Equal(t, user, entries[0].SubjectID)

	require.Eventually(t, func() bool {
		return cache.Len(domain.PresenceCursor) == 0
	}, time.Second, 5*time.Millisecond, "entry silently disappears after the TTL")
}

func TestPresenceCache_RecordRenewsTTL(t *testing.T) {
	cache := newPresenceCache(60*time.Millisecond, 60*time.Millisecond)
	defer cache.Close()

	user := uuid.New()
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user, X: 1, Y: 1})
	time.Sleep(40 * time.Millisecond)
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user, X: 2, Y: 2})
	time.Sleep(40 * time.Millisecond)

	// 80ms after the first sample but only 40ms after the refresh.
	assert.Equal(t, 1, cache.Len(domain.PresenceCursor), "fresh sample re-arms the expiry")
}

func TestPresenceCache_LastWriteWins(t *testing.T) {
	cache := newPresenceCache(time.Second, time.Second)
	defer cache.Close()

	user := uuid.New()
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user, X: 1, Y: 1})
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user, X: 5, Y: 9})

	entries := cache.Get(domain.PresenceCursor)
	require.Len(t, entries, 1, "one entry per subject and kind")
	payload, ok := entries[0].Value.(domain.CursorPayload)
	require.True(t, ok)
	assert.Equal(t, 5.0, payload.X)
	assert.Equal(t, 9.0, payload.Y)
}

func TestPresenceCache_KindsAreIndependent(t *testing.T) {
	cache := newPresenceCache(time.Second, time.Second)
	defer cache.Close()

	user := uuid.New()
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user})
	cache.Record(user, domain.PresenceTyping, domain.TypingPayload{UserID: user, TaskID: 3})

	assert.Equal(t, 1, cache.Len(domain.PresenceCursor))
	assert.Equal(t, 1, cache.Len(domain.PresenceTyping))

	cache.Clear(user, domain.PresenceTyping)
	assert.Equal(t, 1, cache.Len(domain.PresenceCursor), "clearing typing leaves the cursor alone")
	assert.Equal(t, 0, cache.Len(domain.PresenceTyping))
}

func TestPresenceCache_GetSortedBySubject(t *testing.T) {
	cache := newPresenceCache(time.Second, time.Second)
	defer cache.Close()

	for i := 0; i < 5; i++ {
		user := uuid.New()
		cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user})
	}

	entries := cache.Get(domain.PresenceCursor)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].SubjectID.String(), entries[i].SubjectID.String())
	}
}

func TestPresenceCache_Close(t *testing.T) {
	cache := newPresenceCache(time.Second, time.Second)

	user := uuid.New()
	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user})
	cache.Close()

	assert.Equal(t, 0, cache.Len(domain.PresenceCursor))

	cache.Record(user, domain.PresenceCursor, domain.CursorPayload{UserID: user})
	assert.Equal(t, 0, cache.Len(domain.PresenceCursor), "a closed cache accepts nothing")
}
