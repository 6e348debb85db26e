package services_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTask(t *testing.T, store *services.EntityStore, id int64, title, description string) *domain.Task {
	t.Helper()
	task := &domain.Task{
		ID:          id,
		WorkspaceID: 1,
		Title:       title,
		Description: description,
		Status:      domain.StatusTodo,
		Priority:    domain.PriorityMedium,
	}
	store.SetConfirmed(task)
	return task
}

func visibleTask(t *testing.T, store *services.EntityStore, id int64) *domain.Task {
	t.Helper()
	e, ok := store.Get(id)
	require.True(t, ok)
	task, ok := e.(*domain.Task)
	require.True(t, ok)
	return task
}

func TestEntityStore_OptimisticThenConfirm(t *testing.T) {
	t.Run("visible equals server entity after confirm", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "old title", "old description")

		token, err := store.ApplyOptimistic(7, domain.Patch{"title": "Ship v2"})
		require.NoError(t, err)
		assert.Equal(t, "Ship v2", visibleTask(t, store, 7).Title)

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "Ship v2", Description: "server description", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		require.NoError(t, store.Confirm(token, server))

		got := visibleTask(t, store, 7)
		assert.Equal(t, "Ship v2", got.Title)
		assert.Equal(t, "server description", got.Description)
		assert.Equal(t, 0, store.PendingCount(7))
	})

	t.Run("other pending mutations re-applied over new baseline", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "old title", "old description")

		tokenA, err := store.ApplyOptimistic(7, domain.Patch{"title": "edited title"})
		require.NoError(t, err)
		_, err = store.ApplyOptimistic(7, domain.Patch{"priority": domain.PriorityHigh})
		require.NoError(t, err)

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "edited title", Description: "old description", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		require.NoError(t, store.Confirm(tokenA, server))

		got := visibleTask(t, store, 7)
		assert.Equal(t, "edited title", got.Title)
		assert.Equal(t, domain.PriorityHigh, got.Priority, "still-pending priority edit must stay applied")
		assert.Equal(t, 1, store.PendingCount(7))
	})

	t.Run("two rapid edits, first confirms, second stays visible", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "original", "d")

		tokenA, err := store.ApplyOptimistic(7, domain.Patch{"title": "A"})
		require.NoError(t, err)
		_, err = store.ApplyOptimistic(7, domain.Patch{"title": "B"})
		require.NoError(t, err)

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "A", Description: "d", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		require.NoError(t, store.Confirm(tokenA, server))

		assert.Equal(t, "B", visibleTask(t, store, 7).Title)
	})
}

func TestEntityStore_Rollback(t *testing.T) {
	t.Run("touched fields revert, untouched fields unaffected", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "original title", "original description")

		token, err := store.ApplyOptimistic(7, domain.Patch{"title": "oops"})
		require.NoError(t, err)
		require.NoError(t, store.Rollback(token))

		got := visibleTask(t, store, 7)
		assert.Equal(t, "original title", got.Title)
		assert.Equal(t, "original description", got.Description)
	})

	t.Run("later pending edits survive an earlier rollback", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "original", "d")

		tokenA, err := store.ApplyOptimistic(7, domain.Patch{"title": "A"})
		require.NoError(t, err)
		_, err = store.ApplyOptimistic(7, domain.Patch{"description": "B description"})
		require.NoError(t, err)

		require.NoError(t, store.Rollback(tokenA))

		got := visibleTask(t, store, 7)
		assert.Equal(t, "original", got.Title)
		assert.Equal(t, "B description", got.Description)
		assert.Equal(t, 1, store.PendingCount(7))
	})

	t.Run("rollback of later edit keeps earlier pending value", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "original", "d")

		_, err := store.ApplyOptimistic(7, domain.Patch{"title": "A"})
		require.NoError(t, err)
		tokenB, err := store.ApplyOptimistic(7, domain.Patch{"title": "B"})
		require.NoError(t, err)

		require.NoError(t, store.Rollback(tokenB))
		assert.Equal(t, "A", visibleTask(t, store, 7).Title)
	})
}

func TestEntityStore_MergeRemote(t *testing.T) {
	t.Run("replaces outright with no pending mutations", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "old", "old")

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "remote", Description: "remote", Status: domain.StatusInProgress, Priority: domain.PriorityHigh}
		store.MergeRemote(server)

		got := visibleTask(t, store, 7)
		assert.Equal(t, "remote", got.Title)
		assert.Equal(t, domain.StatusInProgress, got.Status)
	})

	t.Run("local pending edits win over concurrent remote state", func(t *testing.T) {
		// The concrete scenario: a local title edit is in flight when a
		// push arrives changing the description.
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "old title", "old description")

		token, err := store.ApplyOptimistic(7, domain.Patch{"title": "Ship v2"})
		require.NoError(t, err)

		remote := &domain.Task{ID: 7, WorkspaceID: 1, Title: "old title", Description: "remote description", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		store.MergeRemote(remote)

		got := visibleTask(t, store, 7)
		assert.Equal(t, "Ship v2", got.Title, "local pending edit wins")
		assert.Equal(t, "remote description", got.Description, "remote baseline shows through")

		// Once the mutation resolves, the server's answer is final.
		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "Ship v2", Description: "remote description", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		require.NoError(t, store.Confirm(token, server))
		assert.Equal(t, "Ship v2", visibleTask(t, store, 7).Title)
	})

	t.Run("duplicate delivery is idempotent", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "old", "old")

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "remote", Description: "remote", Status: domain.StatusTodo, Priority: domain.PriorityLow}
		store.MergeRemote(server)
		once := visibleTask(t, store, 7)

		store.MergeRemote(server)
		twice := visibleTask(t, store, 7)
		assert.Equal(t, once, twice)
	})

	t.Run("merge can introduce a previously unknown entity", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		store.MergeRemote(&domain.Task{ID: 42, WorkspaceID: 1, Title: "new", Status: domain.StatusTodo, Priority: domain.PriorityLow})

		_, ok := store.Get(42)
		assert.True(t, ok)
	})
}

func TestEntityStore_UnknownToken(t *testing.T) {
	t.Run("no-ops safely in production mode", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "t", "d")

		err := store.Confirm(uuid.New(), &domain.Task{ID: 7})
		assert.ErrorIs(t, err, apperrors.ErrUnknownMutation)

		err = store.Rollback(uuid.New())
		assert.ErrorIs(t, err, apperrors.ErrUnknownMutation)
	})

	t.Run("panics in strict mode", func(t *testing.T) {
		store := services.NewEntityStore("task", true, testLogger())
		assert.Panics(t, func() {
			_ = store.Rollback(uuid.New())
		})
	})
}

func TestEntityStore_RemoveAndRestore(t *testing.T) {
	t.Run("restore brings back entity and pending edits", func(t *testing.T) {
		store := services.NewEntityStore("task", false, testLogger())
		seedTask(t, store, 7, "title", "d")
		_, err := store.ApplyOptimistic(7, domain.Patch{"title": "edited"})
		require.NoError(t, err)

		removed, pendings := store.Remove(7)
		_, ok := store.Get(7)
		require.False(t, ok)

		store.Restore(removed, pendings)
		assert.Equal(t, "edited", visibleTask(t, store, 7).Title)
		assert.Equal(t, 1, store.PendingCount(7))
	})

	t.Run("resolving a mutation discarded by delete is quiet even in strict mode", func(t *testing.T) {
		store := services.NewEntityStore("task", true, testLogger())
		seedTask(t, store, 7, "title", "d")
		token, err := store.ApplyOptimistic(7, domain.Patch{"title": "edited"})
		require.NoError(t, err)

		store.RemoveRemote(7)

		assert.NotPanics(t, func() {
			assert.NoError(t, store.Confirm(token, &domain.Task{ID: 7}))
		})
		_, ok := store.Get(7)
		assert.False(t, ok, "remote delete stays deleted")
	})
}

func TestEntityStore_ApplyOptimisticUnknownEntity(t *testing.T) {
	store := services.NewEntityStore("task", false, testLogger())
	_, err := store.ApplyOptimistic(99, domain.Patch{"title": "x"})
	assert.ErrorIs(t, err, apperrors.ErrEntityNotFound)
}
