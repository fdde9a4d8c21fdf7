package server

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/flowloom/loom/internal/service"
)

// runsResponse wraps a list of persisted execution records for JSON output.
type runsResponse struct {
	Runs []service.Execution `json:"runs"`
}

// ListRunsAPI handles GET /api/v1/runs?workflow_id=... Execution history is
// scoped to one workflow at a time — there is no "list every run across
// every workflow" query in ExecutionStorer.
func (s *Server) ListRunsAPI(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflow_id")
	if workflowID == "" {
		httpResponse(w, "workflow_id query parameter is required", http.StatusBadRequest)
		return
	}

	records, err := s.store.ListExecutions(r.Context(), workflowID)
	if err != nil {
		slog.Error("list runs failed", "workflow_id", workflowID, "error", err)
		httpResponse(w, fmt.Sprintf("failed to list runs: %v", err), http.StatusInternalServerError)
		return
	}

	if records == nil {
		records = []service.Execution{}
	}

	httpResponseJSON(w, runsResponse{Runs: records}, http.StatusOK)
}
