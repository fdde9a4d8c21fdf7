package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
)

// ─── Workflow CRUD API ───

// workflowsResponse wraps a list of workflow records for JSON output.
type workflowsResponse struct {
	Workflows []service.Workflow `json:"workflows"`
}

// ListWorkflowsAPI handles GET /api/v1/workflows.
func (s *Server) ListWorkflowsAPI(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListWorkflows(r.Context())
	if err != nil {
		slog.Error("list workflows failed", "error", err)
		httpResponse(w, fmt.Sprintf("failed to list workflows: %v", err), http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []service.Workflow{}
	}

	httpResponseJSON(w, workflowsResponse{Workflows: records}, http.StatusOK)
}

// GetWorkflowAPI handles GET /api/v1/workflows/:id.
func (s *Server) GetWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	record, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}

	if record == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	httpResponseJSON(w, record, http.StatusOK)
}

// CreateWorkflowAPI handles POST /api/v1/workflows. The submitted graph is
// validated (node uniqueness, connection targets, at least one trigger)
// before it is persisted; any schedule triggers it contains are installed
// with the scheduler immediately.
func (s *Server) CreateWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	var req service.Workflow
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		httpResponse(w, "name is required", http.StatusBadRequest)
		return
	}

	if _, err := workflow.Build(req.Graph); err != nil {
		httpResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	username := currentUsername(r)
	req.CreatedBy = username
	req.UpdatedBy = username

	record, err := s.store.CreateWorkflow(r.Context(), req)
	if err != nil {
		slog.Error("create workflow failed", "name", req.Name, "error", err)
		httpResponse(w, fmt.Sprintf("failed to create workflow: %v", err), http.StatusInternalServerError)
		return
	}

	if s.scheduler != nil {
		if err := s.scheduler.RegisterWorkflow(record); err != nil {
			slog.Error("register workflow schedule triggers failed", "id", record.ID, "error", err)
			httpResponse(w, fmt.Sprintf("workflow created but schedule triggers failed to register: %v", err), http.StatusUnprocessableEntity)
			return
		}
	}

	httpResponseJSON(w, record, http.StatusCreated)
}

// UpdateWorkflowAPI handles PUT /api/v1/workflows/:id. Existing schedule
// triggers are unregistered and the (possibly changed) set re-registered,
// so a cron expression or interval edited in place takes effect
// immediately.
func (s *Server) UpdateWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	var req service.Workflow
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		httpResponse(w, "name is required", http.StatusBadRequest)
		return
	}

	if _, err := workflow.Build(req.Graph); err != nil {
		httpResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("update workflow: get failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if existing == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	req.UpdatedBy = currentUsername(r)

	record, err := s.store.UpdateWorkflow(r.Context(), id, req)
	if err != nil {
		slog.Error("update workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to update workflow: %v", err), http.StatusInternalServerError)
		return
	}

	if record == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	if s.scheduler != nil {
		for _, triggerName := range existing.Graph.Triggers {
			s.scheduler.UnregisterTrigger(existing.Name, triggerName)
		}
		if err := s.scheduler.RegisterWorkflow(record); err != nil {
			slog.Error("re-register workflow schedule triggers failed", "id", record.ID, "error", err)
			httpResponse(w, fmt.Sprintf("workflow updated but schedule triggers failed to register: %v", err), http.StatusUnprocessableEntity)
			return
		}
	}

	httpResponseJSON(w, record, http.StatusOK)
}

// DeleteWorkflowAPI handles DELETE /api/v1/workflows/:id.
func (s *Server) DeleteWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	existing, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("delete workflow: get failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}

	if err := s.store.DeleteWorkflow(r.Context(), id); err != nil {
		slog.Error("delete workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to delete workflow: %v", err), http.StatusInternalServerError)
		return
	}

	if existing != nil && s.scheduler != nil {
		for _, triggerName := range existing.Graph.Triggers {
			s.scheduler.UnregisterTrigger(existing.Name, triggerName)
		}
	}

	httpResponse(w, "deleted", http.StatusOK)
}

// ─── Workflow Execution ───

// runWorkflowResponse is the execution record returned once a run completes.
type runWorkflowResponse struct {
	RunID      string         `json:"run_id"`
	WorkflowID string         `json:"workflow_id"`
	Status     string         `json:"status"`
	History    []string       `json:"history"`
	Errors     []string       `json:"errors"`
	Data       map[string]any `json:"data"`
}

// RunWorkflowAPI handles POST /api/v1/workflows/run/:id. The optional
// "trigger" query parameter names the trigger node to fire; when absent,
// every manual trigger in the workflow fires (engine.Run's default entry
// selection). The run is recorded via the execution store: the record is
// created as IN_PROGRESS and updated to COMPLETED/FAILED when the run
// returns (PENDING is never written). The run executes synchronously — the engine's own node timeouts bound how long this can
// block.
func (s *Server) RunWorkflowAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		httpResponse(w, "workflow id is required", http.StatusBadRequest)
		return
	}

	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("run workflow: get failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	triggerName := r.URL.Query().Get("trigger")

	startedAt := time.Now().UTC()
	execution, err := s.store.CreateExecution(r.Context(), service.Execution{
		WorkflowID:  id,
		TriggerName: triggerName,
		Status:      service.ExecutionInProgress,
		StartedAt:   startedAt.Format(time.RFC3339),
	})
	if err != nil {
		slog.Error("run workflow: create execution record failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to create execution record: %v", err), http.StatusInternalServerError)
		return
	}

	ec, err := s.engine.Run(r.Context(), wf.Graph, triggerName, slog.Default())
	if err != nil {
		slog.Error("run workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to run workflow: %v", err), http.StatusBadRequest)
		return
	}

	status := ec.Status()
	completedAt := time.Now().UTC()
	log := append(append([]string(nil), ec.History()...), ec.Errors()...)

	if _, err := s.store.UpdateExecution(r.Context(), execution.ID, service.Execution{
		WorkflowID:  id,
		TriggerName: triggerName,
		Status:      service.ExecutionStatus(status),
		StartedAt:   execution.StartedAt,
		CompletedAt: completedAt.Format(time.RFC3339),
		Log:         log,
	}); err != nil {
		slog.Error("run workflow: update execution record failed", "id", id, "execution_id", execution.ID, "error", err)
	}

	httpResponseJSON(w, runWorkflowResponse{
		RunID:      execution.ID,
		WorkflowID: id,
		Status:     status,
		History:    ec.History(),
		Errors:     ec.Errors(),
		Data:       ec.Data(),
	}, http.StatusOK)
}
