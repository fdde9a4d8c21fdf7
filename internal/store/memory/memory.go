// Package memory is an in-memory implementation of the workflow, user, and
// execution persistence interfaces. Data does not survive process
// restarts; suitable for development and tests, not production.
package memory

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/flowloom/loom/internal/service"
	"github.com/oklog/ulid/v2"
)

type Memory struct {
	mu         sync.RWMutex
	workflows  map[string]service.Workflow  // id -> workflow
	users      map[string]service.User      // id -> user
	executions map[string]service.Execution // id -> execution
}

func New() *Memory {
	slog.Info("using in-memory store (data will not persist across restarts)")

	return &Memory{
		workflows:  make(map[string]service.Workflow),
		users:      make(map[string]service.User),
		executions: make(map[string]service.Execution),
	}
}

func (m *Memory) Close() {}

// ─── Workflow CRUD ───

func (m *Memory) ListWorkflows(_ context.Context) ([]service.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]service.Workflow, 0, len(m.workflows))
	for _, w := range m.workflows {
		result = append(result, w)
	}

	slices.SortFunc(result, func(a, b service.Workflow) int {
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})

	return result, nil
}

func (m *Memory) GetWorkflow(_ context.Context, id string) (*service.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}
	return &w, nil
}

func (m *Memory) CreateWorkflow(_ context.Context, w service.Workflow) (*service.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)

	w.ID = ulid.Make().String()
	w.CreatedAt = now
	w.UpdatedAt = now
	w.UpdatedBy = w.CreatedBy

	m.workflows[w.ID] = w

	return &w, nil
}

func (m *Memory) UpdateWorkflow(_ context.Context, id string, w service.Workflow) (*service.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.workflows[id]
	if !ok {
		return nil, nil
	}

	w.ID = id
	w.CreatedAt = existing.CreatedAt
	w.CreatedBy = existing.CreatedBy
	w.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	m.workflows[id] = w

	return &w, nil
}

func (m *Memory) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.workflows, id)

	return nil
}

// ─── User CRUD ───

func (m *Memory) GetUser(_ context.Context, id string) (*service.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (*service.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateUser(_ context.Context, u service.User) (*service.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.ID = ulid.Make().String()
	u.CreatedAt = time.Now().UTC().Format(time.RFC3339)

	m.users[u.ID] = u

	return &u, nil
}

// ─── Execution CRUD ───

func (m *Memory) CreateExecution(_ context.Context, e service.Execution) (*service.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e.ID = ulid.Make().String()
	m.executions[e.ID] = e

	return &e, nil
}

func (m *Memory) UpdateExecution(_ context.Context, id string, e service.Execution) (*service.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.executions[id]; !ok {
		return nil, nil
	}

	e.ID = id
	m.executions[id] = e

	return &e, nil
}

func (m *Memory) GetExecution(_ context.Context, id string) (*service.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.executions[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (m *Memory) ListExecutions(_ context.Context, workflowID string) ([]service.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []service.Execution
	for _, e := range m.executions {
		if e.WorkflowID == workflowID {
			result = append(result, e)
		}
	}

	slices.SortFunc(result, func(a, b service.Execution) int {
		if a.StartedAt > b.StartedAt {
			return -1
		}
		if a.StartedAt < b.StartedAt {
			return 1
		}
		return 0
	})

	return result, nil
}
