package workflow_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"

	_ "github.com/flowloom/loom/internal/service/workflow/nodes"
)

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

func manualTriggerNode(name string) service.WorkflowNode {
	return service.WorkflowNode{Name: name, Kind: "manual_trigger"}
}

func TestEngineHappyPathSequentialRun(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{
				Name:       "shout",
				Kind:       "transform",
				Parameters: map[string]any{"operation": "uppercase", "input_key": "start.trigger_type"},
			},
		},
		Connections: map[string][]string{"start": {"shout"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ec.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", ec.Errors())
	}
	if ec.Status() != "COMPLETED" {
		t.Fatalf("status = %q, want COMPLETED", ec.Status())
	}

	got, _ := ec.Get("shout")
	if got != "MANUAL" {
		t.Fatalf("shout result = %v, want MANUAL", got)
	}

	wantHistory := []string{"start", "shout"}
	if !slices.Equal(ec.History(), wantHistory) {
		t.Fatalf("history = %v, want %v", ec.History(), wantHistory)
	}
}

func TestEngineDiamondJoinFirstVisitWins(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{Name: "left", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "start.trigger_type"}},
			{Name: "right", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "start.trigger_type"}},
			{Name: "join", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "left"}},
		},
		Connections: map[string][]string{
			"start": {"left", "right"},
			"left":  {"join"},
			"right": {"join"},
		},
		Triggers: []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ec.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", ec.Errors())
	}

	count := 0
	for _, name := range ec.History() {
		if name == "join" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("join executed %d times, want exactly 1 (diamond join, first-visit wins)", count)
	}
}

func TestEnginePartialFailureContainment(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			// "start" itself is a map, not a string — uppercase fails.
			{Name: "broken", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "start"}},
			{Name: "fine", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "start.trigger_type"}},
		},
		Connections: map[string][]string{"start": {"broken", "fine"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ec.Errors()) != 1 {
		t.Fatalf("errors = %v, want exactly 1", ec.Errors())
	}
	if ec.Status() != "FAILED" {
		t.Fatalf("status = %q, want FAILED", ec.Status())
	}

	if !slices.Contains(ec.History(), "fine") {
		t.Fatal("sibling node 'fine' should still have run despite 'broken' failing")
	}
	if slices.Contains(ec.History(), "broken") {
		t.Fatal("'broken' should not appear in history since it failed")
	}
}

func TestEngineMissingFieldIsContainedError(t *testing.T) {
	// A node addressing an upstream value that doesn't exist surfaces as a
	// contained NodeExecutionError rather than aborting the run, the same
	// contract send_email's templates rely on when a placeholder can't
	// resolve against the run's recorded data.
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{Name: "missing", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "start.does_not_exist"}},
		},
		Connections: map[string][]string{"start": {"missing"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ec.Errors()) != 1 {
		t.Fatalf("errors = %v, want exactly 1 for the missing key", ec.Errors())
	}
}

func TestEngineHTTPRequestAgainstTestServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{Name: "call", Kind: "http_request", Parameters: map[string]any{"url": srv.URL, "method": "GET"}},
			{Name: "extract", Kind: "transform", Parameters: map[string]any{"operation": "extract_field", "input_key": "call.body", "field": "ok"}},
		},
		Connections: map[string][]string{"start": {"call"}, "call": {"extract"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(ec.Errors()) != 0 {
		t.Fatalf("unexpected errors: %v", ec.Errors())
	}

	got, _ := ec.Get("extract")
	if got != true {
		t.Fatalf("extract result = %v, want true", got)
	}
}

func TestEngineHTTPRequestFailureIsContained(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{Name: "call", Kind: "http_request", Parameters: map[string]any{"url": srv.URL, "method": "GET"}},
		},
		Connections: map[string][]string{"start": {"call"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := ec.Get("call")
	if !ok {
		t.Fatal("a 500 response is still a successful node execution, just success=false")
	}
	result, ok := got.(map[string]any)
	if !ok || result["success"] != false {
		t.Fatalf("result = %v, want success=false", got)
	}
	if len(ec.Errors()) != 0 {
		t.Fatalf("a 5xx HTTP response is not itself a node failure, got errors %v", ec.Errors())
	}
}

func TestEngineManualRunIgnoresScheduleTriggers(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("manual-entry"),
			{
				Name: "scheduled-entry",
				Kind: "schedule_trigger",
				Parameters: map[string]any{
					"schedule_type":    "interval",
					"interval_minutes": 5,
				},
			},
		},
		Triggers: []string{"manual-entry", "scheduled-entry"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Contains(ec.History(), "manual-entry") {
		t.Fatal("expected the manual trigger to fire")
	}
	if slices.Contains(ec.History(), "scheduled-entry") {
		t.Fatal("schedule triggers must never auto-fire from an unnamed Run")
	}
}

func TestEngineExplicitTriggerNameFiresOnlyThatNode(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("manual-entry"),
			{
				Name: "scheduled-entry",
				Kind: "schedule_trigger",
				Parameters: map[string]any{
					"schedule_type":    "interval",
					"interval_minutes": 5,
				},
			},
		},
		Triggers: []string{"manual-entry", "scheduled-entry"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "scheduled-entry", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !slices.Contains(ec.History(), "scheduled-entry") {
		t.Fatal("explicit trigger name should fire that node")
	}
	if slices.Contains(ec.History(), "manual-entry") {
		t.Fatal("explicit trigger name should not also fire the manual trigger")
	}
}

func TestEngineUnknownTriggerNameIsValidationError(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes:    []service.WorkflowNode{manualTriggerNode("start")},
		Triggers: []string{"start"},
	}

	engine := workflow.NewEngine()
	_, err := engine.Run(context.Background(), graph, "does-not-exist", discardLogger())
	if err == nil {
		t.Fatal("expected an error for an unknown trigger name")
	}

	if _, ok := err.(*workflow.ValidationError); !ok {
		t.Fatalf("expected *workflow.ValidationError, got %T: %v", err, err)
	}
}

// emptyResultTrigger is a test-only trigger node whose result is always
// empty, exercising the "empty trigger result skips successors" rule
// without needing a built-in node kind that ever legitimately returns one.
type emptyResultTrigger struct{ name string }

func (e *emptyResultTrigger) Name() string             { return e.name }
func (e *emptyResultTrigger) Kind() string              { return "empty_trigger_test" }
func (e *emptyResultTrigger) ValidateParameters() error { return nil }
func (e *emptyResultTrigger) TriggerKind() string        { return "manual" }

func (e *emptyResultTrigger) Execute(_ context.Context, _ *workflow.Context) (any, error) {
	return nil, nil
}

func TestEngineEmptyTriggerResultSkipsSuccessors(t *testing.T) {
	workflow.RegisterNodeType("empty_trigger_test", func(n service.WorkflowNode) (workflow.Noder, error) {
		return &emptyResultTrigger{name: n.Name}, nil
	})

	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			{Name: "quiet", Kind: "empty_trigger_test"},
			{Name: "never", Kind: "transform", Parameters: map[string]any{"operation": "uppercase", "input_key": "quiet"}},
		},
		Connections: map[string][]string{"quiet": {"never"}},
		Triggers:    []string{"quiet"},
	}

	engine := workflow.NewEngine()
	ec, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if slices.Contains(ec.History(), "never") {
		t.Fatal("a node downstream of an empty trigger result must not run")
	}
	if len(ec.Errors()) != 0 {
		t.Fatalf("an empty trigger result is not itself an error, got %v", ec.Errors())
	}
}

func TestEngineUnknownNodeKindIsValidationError(t *testing.T) {
	graph := service.WorkflowGraph{
		Nodes: []service.WorkflowNode{
			manualTriggerNode("start"),
			{Name: "ghost", Kind: "does_not_exist"},
		},
		Connections: map[string][]string{"start": {"ghost"}},
		Triggers:    []string{"start"},
	}

	engine := workflow.NewEngine()
	_, err := engine.Run(context.Background(), graph, "", discardLogger())
	if err == nil {
		t.Fatal("expected an error for an unregistered node kind")
	}
	if _, ok := err.(*workflow.ValidationError); !ok {
		t.Fatalf("expected *workflow.ValidationError, got %T: %v", err, err)
	}
}
