package ports

import (
	"context"

	"github.com/taskwire/taskwire-client/internal/core/domain"
)

// TaskAPI is the REST boundary for task mutations. Every method returns the
// server's authoritative entity state on success; any rejection is an error
// the mutation coordinator treats uniformly as "mutation failed".
type TaskAPI interface {
	CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.Patch) (*domain.Task, error)
	DeleteTask(ctx context.Context, id int64) error
}

// WorkspaceAPI is the REST boundary for workspace mutations.
type WorkspaceAPI interface {
	UpdateWorkspace(ctx context.Context, id int64, patch domain.Patch) (*domain.Workspace, error)
}
