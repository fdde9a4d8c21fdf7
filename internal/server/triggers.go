package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
)

// Trigger endpoints view and mutate a workflow's own trigger nodes. There
// is no separate Trigger entity to persist — a trigger is just a node
// named in the owning workflow's Graph.Triggers — so every handler
// here round-trips through the workflow store.

// triggersResponse wraps the trigger node list for a single workflow.
type triggersResponse struct {
	Triggers []service.WorkflowNode `json:"triggers"`
}

// ListTriggersAPI handles GET /api/v1/workflows/:workflow_id/triggers.
func (s *Server) ListTriggersAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("workflow_id")

	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("list triggers: get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	triggers := make([]service.WorkflowNode, 0, len(wf.Graph.Triggers))
	for _, name := range wf.Graph.Triggers {
		if n := wf.Graph.NodeByName(name); n != nil {
			triggers = append(triggers, *n)
		}
	}

	httpResponseJSON(w, triggersResponse{Triggers: triggers}, http.StatusOK)
}

// CreateTriggerAPI handles POST /api/v1/workflows/:workflow_id/triggers. The
// body is a WorkflowNode; it is appended to the workflow's graph and to its
// trigger set. A node name the workflow already has is rejected with 409
// Conflict. A schedule trigger is installed with the scheduler immediately
// so it begins firing without requiring a separate workflow update.
func (s *Server) CreateTriggerAPI(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("workflow_id")

	var node service.WorkflowNode
	if err := json.NewDecoder(r.Body).Decode(&node); err != nil {
		httpResponse(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if node.Name == "" || node.Kind == "" {
		httpResponse(w, "trigger name and kind are required", http.StatusBadRequest)
		return
	}

	wf, err := s.store.GetWorkflow(r.Context(), id)
	if err != nil {
		slog.Error("create trigger: get workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", id), http.StatusNotFound)
		return
	}

	if wf.Graph.NodeByName(node.Name) != nil {
		httpResponse(w, fmt.Sprintf("node %q already exists in workflow", node.Name), http.StatusConflict)
		return
	}

	wf.Graph.Nodes = append(wf.Graph.Nodes, node)
	wf.Graph.Triggers = append(wf.Graph.Triggers, node.Name)

	if _, err := workflow.Build(wf.Graph); err != nil {
		httpResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := s.store.UpdateWorkflow(r.Context(), id, *wf)
	if err != nil {
		slog.Error("create trigger: update workflow failed", "id", id, "error", err)
		httpResponse(w, fmt.Sprintf("failed to persist trigger: %v", err), http.StatusInternalServerError)
		return
	}

	if s.scheduler != nil {
		if err := s.scheduler.RegisterTrigger(record, node.Name); err != nil {
			slog.Error("register trigger failed", "id", id, "trigger", node.Name, "error", err)
			httpResponse(w, fmt.Sprintf("trigger saved but failed to register: %v", err), http.StatusUnprocessableEntity)
			return
		}
	}

	httpResponseJSON(w, node, http.StatusCreated)
}

// DeleteTriggerAPI handles DELETE /api/v1/triggers/:workflowID/:trigger.
// The wildcard path value is "{workflowID}/{triggerName}" since a trigger
// has no identity outside the workflow that declares it.
func (s *Server) DeleteTriggerAPI(w http.ResponseWriter, r *http.Request) {
	workflowID, triggerName := splitTriggerPath(r.PathValue("id"))
	if workflowID == "" || triggerName == "" {
		httpResponse(w, "trigger path must be {workflowID}/{triggerName}", http.StatusBadRequest)
		return
	}

	wf, err := s.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		slog.Error("delete trigger: get workflow failed", "id", workflowID, "error", err)
		httpResponse(w, fmt.Sprintf("failed to get workflow: %v", err), http.StatusInternalServerError)
		return
	}
	if wf == nil {
		httpResponse(w, fmt.Sprintf("workflow %q not found", workflowID), http.StatusNotFound)
		return
	}

	triggers := make([]string, 0, len(wf.Graph.Triggers))
	found := false
	for _, t := range wf.Graph.Triggers {
		if t == triggerName {
			found = true
			continue
		}
		triggers = append(triggers, t)
	}
	if !found {
		httpResponse(w, fmt.Sprintf("trigger %q not found in workflow %q", triggerName, workflowID), http.StatusNotFound)
		return
	}
	wf.Graph.Triggers = triggers

	if _, err := s.store.UpdateWorkflow(r.Context(), workflowID, *wf); err != nil {
		slog.Error("delete trigger: update workflow failed", "id", workflowID, "error", err)
		httpResponse(w, fmt.Sprintf("failed to persist trigger removal: %v", err), http.StatusInternalServerError)
		return
	}

	if s.scheduler != nil {
		s.scheduler.UnregisterTrigger(wf.Name, triggerName)
	}

	httpResponse(w, "deleted", http.StatusOK)
}

// splitTriggerPath divides a "{workflowID}/{triggerName}" wildcard value
// into its two parts. Either half is empty if the separator is absent.
func splitTriggerPath(path string) (workflowID, triggerName string) {
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			return path[:i], path[i+1:]
		}
	}
	return "", ""
}
