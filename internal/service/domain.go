// Package service defines the domain types shared across the workflow
// engine, its persistence collaborators, and the HTTP layer.
package service

import "context"

// WorkflowNode is one step in a workflow graph. Kind selects the node
// implementation (see workflow.Noder); Parameters is the node's
// string-keyed configuration bag, validated by that implementation.
type WorkflowNode struct {
	Name       string         `json:"name" db:"name"`
	Kind       string         `json:"kind" db:"kind"`
	Parameters map[string]any `json:"parameters" db:"parameters"`
}

// WorkflowGraph is the node set, forward adjacency, and trigger set that
// make up a workflow's DAG. Connections maps a source node name to its
// successors in declared order.
type WorkflowGraph struct {
	Nodes       []WorkflowNode      `json:"nodes"`
	Connections map[string][]string `json:"connections"`
	Triggers    []string            `json:"triggers"`
}

// NodeByName returns the node with the given name, or nil if absent.
func (g WorkflowGraph) NodeByName(name string) *WorkflowNode {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i]
		}
	}
	return nil
}

// Workflow is the persisted definition of an automation graph.
type Workflow struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description" db:"description"`
	Graph       WorkflowGraph `json:"graph" db:"graph"`
	CreatedAt   string        `json:"created_at" db:"created_at"`
	UpdatedAt   string        `json:"updated_at" db:"updated_at"`
	CreatedBy   string        `json:"created_by" db:"created_by"`
	UpdatedBy   string        `json:"updated_by" db:"updated_by"`
}

// ExecutionStatus is the lifecycle state of one workflow run, derived from
// whether its execution context ended with any recorded errors.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "PENDING"
	ExecutionInProgress ExecutionStatus = "IN_PROGRESS"
	ExecutionCompleted  ExecutionStatus = "COMPLETED"
	ExecutionFailed     ExecutionStatus = "FAILED"
)

// Execution is the durable record of one engine run, created at dispatch
// time and updated as the run progresses.
type Execution struct {
	ID          string          `json:"id" db:"id"`
	WorkflowID  string          `json:"workflow_id" db:"workflow_id"`
	TriggerName string          `json:"trigger_name" db:"trigger_name"`
	Status      ExecutionStatus `json:"status" db:"status"`
	StartedAt   string          `json:"started_at" db:"started_at"`
	CompletedAt string          `json:"completed_at" db:"completed_at"`
	Log         []string        `json:"log" db:"log"`
}

// User is an account that can authenticate against the HTTP API.
type User struct {
	ID           string `json:"id" db:"id"`
	Username     string `json:"username" db:"username"`
	PasswordHash string `json:"-" db:"password_hash"`
	CreatedAt    string `json:"created_at" db:"created_at"`
}

// WorkflowStorer persists workflow definitions.
type WorkflowStorer interface {
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	CreateWorkflow(ctx context.Context, w Workflow) (*Workflow, error)
	UpdateWorkflow(ctx context.Context, id string, w Workflow) (*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// UserStorer persists user accounts for the auth collaborator.
type UserStorer interface {
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, u User) (*User, error)
}

// ExecutionStorer persists execution records.
type ExecutionStorer interface {
	CreateExecution(ctx context.Context, e Execution) (*Execution, error)
	UpdateExecution(ctx context.Context, id string, e Execution) (*Execution, error)
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, workflowID string) ([]Execution, error)
}
