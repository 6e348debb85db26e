package services_test

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/mocks"
	"github.com/taskwire/taskwire-client/internal/core/services"
)

type coordinatorFixture struct {
	coordinator *services.MutationCoordinator
	tasks       *services.EntityStore
	workspaces  *services.EntityStore
	taskAPI     *mocks.MockTaskAPI
	wsAPI       *mocks.MockWorkspaceAPI
	unauthCount atomic.Int32
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		tasks:      services.NewEntityStore("task", false, testLogger()),
		workspaces: services.NewEntityStore("workspace", false, testLogger()),
		taskAPI:    mocks.NewMockTaskAPI(),
		wsAPI:      mocks.NewMockWorkspaceAPI(),
	}
	f.coordinator = services.NewMutationCoordinator(
		f.tasks, f.workspaces, f.taskAPI, f.wsAPI,
		func() { f.unauthCount.Add(1) },
		testLogger(),
	)
	return f
}

func TestMutationCoordinator_CreateTask(t *testing.T) {
	t.Run("installs the server entity on success", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		created := &domain.Task{ID: 101, WorkspaceID: 1, Title: "new task", Status: domain.StatusTodo, Priority: domain.PriorityHigh}
		f.taskAPI.On("CreateTask", mock.Anything, mock.Anything).Return(created, nil)

		got, err := f.coordinator.CreateTask(context.Background(), 1, "new task", "", domain.PriorityHigh)
		require.NoError(t, err)
		assert.Equal(t, int64(101), got.ID)

		stored := visibleTask(t, f.tasks, 101)
		assert.Equal(t, "new task", stored.Title)
	})

	t.Run("rejects invalid input before the network", func(t *testing.T) {
		f := newCoordinatorFixture(t)

		_, err := f.coordinator.CreateTask(context.Background(), 1, "", "", domain.PriorityLow)
		assert.ErrorIs(t, err, domain.ErrTitleRequired)
		f.taskAPI.AssertNumberOfCalls(t, "CreateTask", 0)
	})
}

func TestMutationCoordinator_UpdateTask(t *testing.T) {
	t.Run("confirms with the server entity", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "old", "d")

		server := &domain.Task{ID: 7, WorkspaceID: 1, Title: "new", Description: "d", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
		f.taskAPI.On("UpdateTask", mock.Anything, int64(7), domain.Patch{"title": "new"}).Return(server, nil)

		require.NoError(t, f.coordinator.UpdateTask(context.Background(), 7, domain.Patch{"title": "new"}))

		assert.Equal(t, "new", visibleTask(t, f.tasks, 7).Title)
		assert.Equal(t, 0, f.tasks.PendingCount(7))
	})

	t.Run("rolls back on rejection and surfaces the error", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "old", "d")

		f.taskAPI.On("UpdateTask", mock.Anything, int64(7), mock.Anything).
			Return(nil, apperrors.NewMutationError("title too long", 422))

		err := f.coordinator.UpdateTask(context.Background(), 7, domain.Patch{"title": "new"})
		assert.ErrorIs(t, err, apperrors.ErrMutationRejected)

		assert.Equal(t, "old", visibleTask(t, f.tasks, 7).Title, "state healed to last-known-good")
		assert.Equal(t, 0, f.tasks.PendingCount(7))
		assert.Equal(t, int32(0), f.unauthCount.Load())
	})

	t.Run("fires the session-invalidation path on 401", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "old", "d")

		f.taskAPI.On("UpdateTask", mock.Anything, int64(7), mock.Anything).
			Return(nil, apperrors.NewUnauthorizedError("token expired"))

		err := f.coordinator.UpdateTask(context.Background(), 7, domain.Patch{"title": "new"})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Equal(t, int32(1), f.unauthCount.Load())
	})

	t.Run("unknown entity fails without a network call", func(t *testing.T) {
		f := newCoordinatorFixture(t)

		err := f.coordinator.UpdateTask(context.Background(), 99, domain.Patch{"title": "x"})
		assert.ErrorIs(t, err, apperrors.ErrEntityNotFound)
		f.taskAPI.AssertNumberOfCalls(t, "UpdateTask", 0)
	})
}

func TestMutationCoordinator_OutcomesApplyInSubmissionOrder(t *testing.T) {
	f := newCoordinatorFixture(t)
	seedTask(t, f.tasks, 7, "old", "old")

	patchA := domain.Patch{"title": "A"}
	patchB := domain.Patch{"description": "B"}
	serverA := &domain.Task{ID: 7, WorkspaceID: 1, Title: "A", Description: "old", Status: domain.StatusTodo, Priority: domain.PriorityMedium}
	serverB := &domain.Task{ID: 7, WorkspaceID: 1, Title: "A", Description: "B", Status: domain.StatusTodo, Priority: domain.PriorityMedium}

	releaseA := make(chan struct{})
	bReturned := make(chan struct{})
	f.taskAPI.On("UpdateTask", mock.Anything, int64(7), patchA).Run(func(mock.Arguments) {
		<-releaseA
	}).Return(serverA, nil)
	f.taskAPI.On("UpdateTask", mock.Anything, int64(7), patchB).Run(func(mock.Arguments) {
		close(bReturned)
	}).Return(serverB, nil)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		assert.NoError(t, f.coordinator.UpdateTask(context.Background(), 7, patchA))
	}()

	// The first edit must be in flight before the second is submitted.
	require.Eventually(t, func() bool {
		return f.tasks.PendingCount(7) == 1
	}, time.Second, time.Millisecond)

	go func() {
		defer wg.Done()
		assert.NoError(t, f.coordinator.UpdateTask(context.Background(), 7, patchB))
	}()

	// The second response arrives while the first is still outstanding; it
	// must stay parked rather than touch the store out of order.
	<-bReturned
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.tasks.PendingCount(7), "early response for the later edit is parked")
	got := visibleTask(t, f.tasks, 7)
	assert.Equal(t, "A", got.Title)
	assert.Equal(t, "B", got.Description)

	close(releaseA)
	wg.Wait()

	final := visibleTask(t, f.tasks, 7)
	assert.Equal(t, "A", final.Title)
	assert.Equal(t, "B", final.Description)
	assert.Equal(t, 0, f.tasks.PendingCount(7))
}

func TestMutationCoordinator_DeleteTask(t *testing.T) {
	t.Run("optimistic removal sticks on success", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "doomed", "d")
		f.taskAPI.On("DeleteTask", mock.Anything, int64(7)).Return(nil)

		require.NoError(t, f.coordinator.DeleteTask(context.Background(), 7))
		_, ok := f.tasks.Get(7)
		assert.False(t, ok)
	})

	t.Run("rejection restores the entity with its pending edits", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "kept", "d")
		_, err := f.tasks.ApplyOptimistic(7, domain.Patch{"title": "edited"})
		require.NoError(t, err)

		f.taskAPI.On("DeleteTask", mock.Anything, int64(7)).
			Return(apperrors.NewForbiddenError("not yours"))

		err = f.coordinator.DeleteTask(context.Background(), 7)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)

		assert.Equal(t, "edited", visibleTask(t, f.tasks, 7).Title)
		assert.Equal(t, 1, f.tasks.PendingCount(7))
	})
}

func TestMutationCoordinator_UpdateWorkspace(t *testing.T) {
	f := newCoordinatorFixture(t)
	f.workspaces.SetConfirmed(&domain.Workspace{ID: 3, Name: "old name"})

	server := &domain.Workspace{ID: 3, Name: "new name"}
	f.wsAPI.On("UpdateWorkspace", mock.Anything, int64(3), domain.Patch{"name": "new name"}).Return(server, nil)

	require.NoError(t, f.coordinator.UpdateWorkspace(context.Background(), 3, domain.Patch{"name": "new name"}))

	e, ok := f.workspaces.Get(3)
	require.True(t, ok)
	assert.Equal(t, "new name", e.(*domain.Workspace).Name)
}

func TestMutationCoordinator_InboundEvents(t *testing.T) {
	t.Run("task upsert merges the pushed entity", func(t *testing.T) {
		f := newCoordinatorFixture(t)

		raw, err := json.Marshal(&domain.Task{ID: 7, WorkspaceID: 1, Title: "pushed", Status: domain.StatusTodo, Priority: domain.PriorityLow})
		require.NoError(t, err)
		f.coordinator.HandleTaskUpserted(raw)

		assert.Equal(t, "pushed", visibleTask(t, f.tasks, 7).Title)
	})

	t.Run("malformed payloads are dropped", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "kept", "d")

		f.coordinator.HandleTaskUpserted(json.RawMessage(`{"id": "not a number"`))
		f.coordinator.HandleTaskUpserted(json.RawMessage(`{"title": "no id"}`))
		f.coordinator.HandleTaskDeleted(json.RawMessage(`{{`))
		f.coordinator.HandleWorkspaceUpdated(json.RawMessage(`[]`))

		assert.Equal(t, "kept", visibleTask(t, f.tasks, 7).Title)
		assert.Equal(t, 1, f.tasks.Size())
	})

	t.Run("task delete removes the entity", func(t *testing.T) {
		f := newCoordinatorFixture(t)
		seedTask(t, f.tasks, 7, "doomed", "d")

		raw, err := json.Marshal(domain.TaskDeletedPayload{ID: 7})
		require.NoError(t, err)
		f.coordinator.HandleTaskDeleted(raw)

		_, ok := f.tasks.Get(7)
		assert.False(t, ok)
	})

	t.Run("workspace update merges the pushed entity", func(t *testing.T) {
		f := newCoordinatorFixture(t)

		raw, err := json.Marshal(&domain.Workspace{ID: 3, Name: "renamed"})
		require.NoError(t, err)
		f.coordinator.HandleWorkspaceUpdated(raw)

		e, ok := f.workspaces.Get(3)
		require.True(t, ok)
		assert.Equal(t, "renamed", e.(*domain.Workspace).Name)
	})
}
