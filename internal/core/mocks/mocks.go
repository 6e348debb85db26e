package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/taskwire/taskwire-client/internal/core/domain"
	"github.com/taskwire/taskwire-client/internal/core/ports"
)

// MockTransport is a mock implementation of ports.Transport. Tests drive
// the registered callbacks through the Fire* helpers to simulate the
// transport opening, pushing events, and dropping.
type MockTransport struct {
	mock.Mock

	mu sync.Mutex
	cb ports.TransportCallbacks
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

func (m *MockTransport) SetCallbacks(cb ports.TransportCallbacks) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

func (m *MockTransport) Connect(ctx context.Context, credential string) error {
	args := m.Called(ctx, credential)
	return args.Error(0)
}

func (m *MockTransport) Send(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

func (m *MockTransport) Disconnect() {
	m.Called()
}

// FireOpen simulates the transport completing its handshake.
func (m *MockTransport) FireOpen() {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

// FireClose simulates the transport dropping with the given reason.
func (m *MockTransport) FireClose(reason error) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// FireMessage simulates an inbound pushed event.
func (m *MockTransport) FireMessage(event domain.Event) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb.OnMessage != nil {
		cb.OnMessage(event)
	}
}

// MockTaskAPI is a mock implementation of ports.TaskAPI
type MockTaskAPI struct {
	mock.Mock
}

func NewMockTaskAPI() *MockTaskAPI {
	return &MockTaskAPI{}
}

func (m *MockTaskAPI) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskAPI) UpdateTask(ctx context.Context, id int64, patch domain.Patch) (*domain.Task, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Task), args.Error(1)
}

func (m *MockTaskAPI) DeleteTask(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockWorkspaceAPI is a mock implementation of ports.WorkspaceAPI
type MockWorkspaceAPI struct {
	mock.Mock
}

func NewMockWorkspaceAPI() *MockWorkspaceAPI {
	return &MockWorkspaceAPI{}
}

func (m *MockWorkspaceAPI) UpdateWorkspace(ctx context.Context, id int64, patch domain.Patch) (*domain.Workspace, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Workspace), args.Error(1)
}

// MockCredentialSource is a mock implementation of ports.CredentialSource
type MockCredentialSource struct {
	mock.Mock
}

func NewMockCredentialSource() *MockCredentialSource {
	return &MockCredentialSource{}
}

func (m *MockCredentialSource) Token(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
