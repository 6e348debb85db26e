package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

type entityKey struct {
	kind string
	id   int64
}

// inflight tracks one submitted mutation until its outcome has been
// applied to the store.
type inflight struct {
	resolved bool
	apply    func()
	err      error
	done     chan struct{}
}

// MutationCoordinator orchestrates optimistic edits: apply the change to
// the store immediately, issue the network request, then confirm with the
// server entity or roll back on failure.
//
// Multiple mutations for one entity may be in flight at once (fast
// successive edits are the point of optimism), but their outcomes are
// applied to the store strictly in submission order: a response that
// arrives early for a later mutation is parked until its predecessors
// have resolved.
type MutationCoordinator struct {
	tasks        *EntityStore
	workspaces   *EntityStore
	taskAPI      ports.TaskAPI
	workspaceAPI ports.WorkspaceAPI
	logger       *slog.Logger

	// onUnauthorized is the session-invalidation path; an authorization
	// failure fires it in addition to the normal rollback.
	onUnauthorized func()

	mu    sync.Mutex
	inflt map[entityKey][]*inflight
}

// NewMutationCoordinator wires the coordinator to its stores and the REST
// boundary. onUnauthorized may be nil.
func NewMutationCoordinator(
	tasks, workspaces *EntityStore,
	taskAPI ports.TaskAPI,
	workspaceAPI ports.WorkspaceAPI,
	onUnauthorized func(),
	logger *slog.Logger,
) *MutationCoordinator {
	return &MutationCoordinator{
		tasks:          tasks,
		workspaces:     workspaces,
		taskAPI:        taskAPI,
		workspaceAPI:   workspaceAPI,
		onUnauthorized: onUnauthorized,
		logger:         logger.With("component", "mutation_coordinator"),
		inflt:          make(map[entityKey][]*inflight),
	}
}

// CreateTask validates and creates a task through the REST boundary. The
// server assigns the id, so there is no optimistic phase; the confirmed
// entity is installed on success.
func (c *MutationCoordinator) CreateTask(ctx context.Context, workspaceID int64, title, description string, priority domain.TaskPriority) (*domain.Task, error) {
	task, err := domain.NewTask(workspaceID, title, description, priority)
	if err != nil {
		return nil, err
	}

	created, err := c.taskAPI.CreateTask(ctx, task)
	if err != nil {
		c.noteFailure("create task", err)
		return nil, fmt.Errorf("create task: %w", err)
	}

	c.tasks.SetConfirmed(created)
	return created, nil
}

// UpdateTask applies the patch optimistically, submits it, and resolves
// the store in submission order. The returned error is the caller's cue
// for user feedback; by the time it returns, local state has either been
// confirmed or healed back to last-known-good for this mutation's fields.
func (c *MutationCoordinator) UpdateTask(ctx context.Context, id int64, patch domain.Patch) error {
	token, err := c.tasks.ApplyOptimistic(id, patch)
	if err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}

	key := entityKey{kind: "task", id: id}
	m := c.enqueue(key)

	server, err := c.taskAPI.UpdateTask(ctx, id, patch)
	if err != nil {
		c.resolve(key, m, func() {
			if rbErr := c.tasks.Rollback(token); rbErr != nil {
				c.logger.Warn("rollback failed", "task_id", id, "error", rbErr)
			}
		}, err)
	} else {
		c.resolve(key, m, func() {
			if cfErr := c.tasks.Confirm(token, server); cfErr != nil {
				c.logger.Warn("confirm failed", "task_id", id, "error", cfErr)
			}
		}, nil)
	}

	<-m.done
	if m.err != nil {
		c.noteFailure("update task", m.err)
		return fmt.Errorf("update task %d: %w", id, m.err)
	}
	return nil
}

// DeleteTask removes the task optimistically and restores it, pending
// edits included, if the server rejects the delete.
func (c *MutationCoordinator) DeleteTask(ctx context.Context, id int64) error {
	removed, pendings := c.tasks.Remove(id)

	key := entityKey{kind: "task", id: id}
	m := c.enqueue(key)

	err := c.taskAPI.DeleteTask(ctx, id)
	if err != nil {
		c.resolve(key, m, func() {
			c.tasks.Restore(removed, pendings)
		}, err)
	} else {
		c.resolve(key, m, func() {}, nil)
	}

	<-m.done
	if m.err != nil {
		c.noteFailure("delete task", m.err)
		return fmt.Errorf("delete task %d: %w", id, m.err)
	}
	return nil
}

// UpdateWorkspace is the workspace counterpart of UpdateTask.
func (c *MutationCoordinator) UpdateWorkspace(ctx context.Context, id int64, patch domain.Patch) error {
	token, err := c.workspaces.ApplyOptimistic(id, patch)
	if err != nil {
		return fmt.Errorf("update workspace %d: %w", id, err)
	}

	key := entityKey{kind: "workspace", id: id}
	m := c.enqueue(key)

	server, err := c.workspaceAPI.UpdateWorkspace(ctx, id, patch)
	if err != nil {
		c.resolve(key, m, func() {
			if rbErr := c.workspaces.Rollback(token); rbErr != nil {
				c.logger.Warn("rollback failed", "workspace_id", id, "error", rbErr)
			}
		}, err)
	} else {
		c.resolve(key, m, func() {
			if cfErr := c.workspaces.Confirm(token, server); cfErr != nil {
				c.logger.Warn("confirm failed", "workspace_id", id, "error", cfErr)
			}
		}, nil)
	}

	<-m.done
	if m.err != nil {
		c.noteFailure("update workspace", m.err)
		return fmt.Errorf("update workspace %d: %w", id, m.err)
	}
	return nil
}

// --- inbound push events ---

// HandleTaskUpserted merges a pushed task:created or task:updated event.
// The payload is the full entity, used as a replacement baseline.
func (c *MutationCoordinator) HandleTaskUpserted(payload json.RawMessage) {
	var task domain.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		c.logger.Warn("dropping malformed task event", "error", err)
		return
	}
	if task.ID <= 0 {
		c.logger.Warn("dropping task event without id")
		return
	}
	c.tasks.MergeRemote(&task)
}

// HandleTaskDeleted drops a task removed by another collaborator.
func (c *MutationCoordinator) HandleTaskDeleted(payload json.RawMessage) {
	var p domain.TaskDeletedPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("dropping malformed task:deleted event", "error", err)
		return
	}
	if p.ID <= 0 {
		return
	}
	c.tasks.RemoveRemote(p.ID)
}

// HandleWorkspaceUpdated merges a pushed workspace:updated event.
func (c *MutationCoordinator) HandleWorkspaceUpdated(payload json.RawMessage) {
	var ws domain.Workspace
	if err := json.Unmarshal(payload, &ws); err != nil {
		c.logger.Warn("dropping malformed workspace event", "error", err)
		return
	}
	if ws.ID <= 0 {
		c.logger.Warn("dropping workspace event without id")
		return
	}
	c.workspaces.MergeRemote(&ws)
}

// --- ordered resolution ---

// enqueue appends a new in-flight record to the entity's submission queue.
func (c *MutationCoordinator) enqueue(key entityKey) *inflight {
	m := &inflight{done: make(chan struct{})}
	c.mu.Lock()
	c.inflt[key] = append(c.inflt[key], m)
	c.mu.Unlock()
	return m
}

// resolve records a mutation's outcome, then applies every resolved
// mutation at the head of the entity's queue, in submission order. An
// early response for a later mutation stays parked until its
// predecessors have resolved.
func (c *MutationCoordinator) resolve(key entityKey, m *inflight, apply func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m.apply = apply
	m.err = err
	m.resolved = true

	queue := c.inflt[key]
	for len(queue) > 0 && queue[0].resolved {
		head := queue[0]
		queue = queue[1:]
		head.apply()
		close(head.done)
	}
	if len(queue) == 0 {
		delete(c.inflt, key)
	} else {
		c.inflt[key] = queue
	}
}

func (c *MutationCoordinator) noteFailure(op string, err error) {
	c.logger.Warn("mutation failed", "op", op, "error", err)
	if errors.Is(err, apperrors.ErrUnauthorized) && c.onUnauthorized != nil {
		c.onUnauthorized()
	}
}
