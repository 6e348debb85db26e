package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	apperrors "github.com/taskwire/taskwire-client/internal/core/errors"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

// Config holds REST client configuration
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client is the REST CRUD boundary. It only performs request/response
// mapping: every non-2xx response becomes an error the mutation
// coordinator treats uniformly, with 401 additionally recognizable via
// errors.Is for the session-invalidation path.
type Client struct {
	baseURL string
	http    *http.Client
	creds   ports.CredentialSource
	logger  *slog.Logger
}

var (
	_ ports.TaskAPI      = (*Client)(nil)
	_ ports.WorkspaceAPI = (*Client)(nil)
)

// New creates a REST client.
func New(cfg Config, creds ports.CredentialSource, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		creds:   creds,
		logger:  logger.With("component", "rest_client"),
	}
}

// CreateTask persists a new task and returns the server's entity.
func (c *Client) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	var created domain.Task
	if err := c.do(ctx, http.MethodPost, "/tasks", task, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask applies a field-level patch and returns the full updated
// entity.
func (c *Client) UpdateTask(ctx context.Context, id int64, patch domain.Patch) (*domain.Task, error) {
	var updated domain.Task
	path := fmt.Sprintf("/tasks/%d", id)
	if err := c.do(ctx, http.MethodPatch, path, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/tasks/%d", id), nil, nil)
}

// UpdateWorkspace applies a field-level patch and returns the full
// updated entity.
func (c *Client) UpdateWorkspace(ctx context.Context, id int64, patch domain.Patch) (*domain.Workspace, error) {
	var updated domain.Workspace
	path := fmt.Sprintf("/workspaces/%d", id)
	if err := c.do(ctx, http.MethodPatch, path, patch, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// do performs one JSON request/response round trip.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return fmt.Errorf("credential: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and transport errors roll back the mutation like any
		// other rejection; the UI surfaces them and state self-heals.
		return apperrors.NewMutationError(fmt.Sprintf("request failed: %v", err), 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// statusError maps an HTTP failure to the client error taxonomy.
func (c *Client) statusError(resp *http.Response) error {
	var body struct {
		Message string `json:"message"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	message := body.Message
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	c.logger.Warn("request rejected",
		"status", resp.StatusCode,
		"message", message,
	)

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return apperrors.NewUnauthorizedError(message)
	case http.StatusForbidden:
		return apperrors.NewForbiddenError(message)
	case http.StatusNotFound:
		return apperrors.NewNotFoundError(message)
	default:
		return apperrors.NewMutationError(message, resp.StatusCode)
	}
}
