package nodes

import (
	"context"
	"time"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
)

func init() {
	workflow.RegisterNodeType("manual_trigger", newManualTrigger)
}

// manualTrigger fires only when an operator explicitly runs a workflow
// (or the engine's default-entry-node selection picks it up). It never
// fires from the scheduler.
type manualTrigger struct {
	name string
}

func newManualTrigger(n service.WorkflowNode) (workflow.Noder, error) {
	return &manualTrigger{name: n.Name}, nil
}

func (t *manualTrigger) Name() string { return t.name }
func (t *manualTrigger) Kind() string { return "manual_trigger" }

func (t *manualTrigger) TriggerKind() string { return "manual" }

func (t *manualTrigger) ValidateParameters() error { return nil }

func (t *manualTrigger) Execute(_ context.Context, _ *workflow.Context) (any, error) {
	return map[string]any{
		"trigger_type": "manual",
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	}, nil
}
