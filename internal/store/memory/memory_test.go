package memory

import (
	"context"
	"testing"

	"github.com/flowloom/loom/internal/service"
)

func TestWorkflowCRUD(t *testing.T) {
	ctx := context.Background()
	m := New()

	created, err := m.CreateWorkflow(ctx, service.Workflow{Name: "daily-report", CreatedBy: "alice"})
	if err != nil {
		t.Fatalf("CreateWorkflow: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
	if created.UpdatedBy != "alice" {
		t.Fatalf("UpdatedBy = %q, want alice", created.UpdatedBy)
	}

	got, err := m.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got == nil || got.Name != "daily-report" {
		t.Fatalf("GetWorkflow returned %+v", got)
	}

	updated, err := m.UpdateWorkflow(ctx, created.ID, service.Workflow{Name: "daily-report-v2", UpdatedBy: "bob"})
	if err != nil {
		t.Fatalf("UpdateWorkflow: %v", err)
	}
	if updated.Name != "daily-report-v2" {
		t.Fatalf("Name = %q, want daily-report-v2", updated.Name)
	}
	if updated.CreatedBy != "alice" {
		t.Fatalf("CreatedBy should be preserved across updates, got %q", updated.CreatedBy)
	}

	list, err := m.ListWorkflows(ctx)
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}

	if err := m.DeleteWorkflow(ctx, created.ID); err != nil {
		t.Fatalf("DeleteWorkflow: %v", err)
	}

	got, err = m.GetWorkflow(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetWorkflow after delete: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after delete, got %+v", got)
	}
}

func TestGetWorkflowMissing(t *testing.T) {
	m := New()

	got, err := m.GetWorkflow(context.Background(), "missing-id")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing workflow, got %+v", got)
	}
}

func TestUserLookupByUsername(t *testing.T) {
	ctx := context.Background()
	m := New()

	created, err := m.CreateUser(ctx, service.User{Username: "alice", PasswordHash: "hashed"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := m.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("GetUserByUsername returned %+v, want ID %q", got, created.ID)
	}

	missing, err := m.GetUserByUsername(ctx, "ghost")
	if err != nil {
		t.Fatalf("GetUserByUsername missing: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for unknown username, got %+v", missing)
	}
}

func TestExecutionLifecycle(t *testing.T) {
	ctx := context.Background()
	m := New()

	created, err := m.CreateExecution(ctx, service.Execution{
		WorkflowID:  "wf-1",
		TriggerName: "schedule",
		Status:      service.ExecutionPending,
		StartedAt:   "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}

	updated, err := m.UpdateExecution(ctx, created.ID, service.Execution{
		WorkflowID:  "wf-1",
		TriggerName: "schedule",
		Status:      service.ExecutionCompleted,
		StartedAt:   "2026-01-01T00:00:00Z",
		CompletedAt: "2026-01-01T00:00:05Z",
		Log:         []string{"manual_trigger", "transform"},
	})
	if err != nil {
		t.Fatalf("UpdateExecution: %v", err)
	}
	if updated.Status != service.ExecutionCompleted {
		t.Fatalf("Status = %q, want COMPLETED", updated.Status)
	}

	list, err := m.ListExecutions(ctx, "wf-1")
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len(list) = %d, want 1", len(list))
	}

	otherWorkflow, err := m.ListExecutions(ctx, "wf-does-not-exist")
	if err != nil {
		t.Fatalf("ListExecutions other: %v", err)
	}
	if len(otherWorkflow) != 0 {
		t.Fatalf("len(otherWorkflow) = %d, want 0", len(otherWorkflow))
	}
}
