package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/flowloom/loom/internal/service"
)

func intervalWorkflow(id, name string, intervalMinutes int, successor string) *service.Workflow {
	nodes := []service.WorkflowNode{
		{
			Name: "every-tick",
			Kind: "schedule_trigger",
			Parameters: map[string]any{
				"schedule_type":    "interval",
				"interval_minutes": intervalMinutes,
			},
		},
	}
	connections := map[string][]string{}

	if successor != "" {
		nodes = append(nodes, service.WorkflowNode{Name: successor, Kind: "counter_test"})
		connections["every-tick"] = []string{successor}
	}

	return &service.Workflow{
		ID:   id,
		Name: name,
		Graph: service.WorkflowGraph{
			Nodes:       nodes,
			Connections: connections,
			Triggers:    []string{"every-tick"},
		},
	}
}

// counterNode is a test-only node kind that increments a shared counter
// every time it executes, letting the interval-accuracy test observe real
// engine.Run invocations rather than inferring fire count from elapsed time.
type counterNode struct {
	name    string
	counter *atomic.Int32
}

func (c *counterNode) Name() string             { return c.name }
func (c *counterNode) Kind() string              { return "counter_test" }
func (c *counterNode) ValidateParameters() error { return nil }

func (c *counterNode) Execute(_ context.Context, _ *Context) (any, error) {
	c.counter.Add(1)
	return nil, nil
}

func TestSchedulerIntervalFireRate(t *testing.T) {
	prevUnit := intervalUnit
	intervalUnit = 10 * time.Millisecond
	defer func() { intervalUnit = prevUnit }()

	var counter atomic.Int32
	RegisterNodeType("counter_test", func(n service.WorkflowNode) (Noder, error) {
		return &counterNode{name: n.Name, counter: &counter}, nil
	})

	engine := NewEngine()
	sched := NewScheduler(engine, slog.Default())

	wf := intervalWorkflow("wf-1", "counting-workflow", 1, "tally")
	if err := sched.RegisterWorkflow(wf); err != nil {
		t.Fatalf("RegisterWorkflow: %v", err)
	}

	sched.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	sched.Shutdown()

	got := counter.Load()
	if got < 3 || got > 8 {
		t.Fatalf("fires over ~5 periods = %d, want roughly 5 (±tolerance)", got)
	}
}

func TestSchedulerRejectsDuplicateRegistration(t *testing.T) {
	engine := NewEngine()
	sched := NewScheduler(engine, slog.Default())
	defer sched.Shutdown()

	wf := intervalWorkflow("wf-1", "dup-workflow", 5, "")
	if err := sched.RegisterWorkflow(wf); err != nil {
		t.Fatalf("first RegisterWorkflow: %v", err)
	}

	err := sched.RegisterWorkflow(wf)
	if err == nil {
		t.Fatal("expected error registering the same trigger twice")
	}

	var schedErr *SchedulerError
	if !errors.As(err, &schedErr) {
		t.Fatalf("expected *SchedulerError, got %T: %v", err, err)
	}
}

func TestSchedulerRejectsInvalidCron(t *testing.T) {
	engine := NewEngine()
	sched := NewScheduler(engine, slog.Default())

	wf := &service.Workflow{
		ID:   "wf-2",
		Name: "bad-cron-workflow",
		Graph: service.WorkflowGraph{
			Nodes: []service.WorkflowNode{
				{
					Name: "cron-trigger",
					Kind: "schedule_trigger",
					Parameters: map[string]any{
						"schedule_type":   "cron",
						"cron_expression": "not a cron",
					},
				},
			},
			Triggers: []string{"cron-trigger"},
		},
	}

	err := sched.RegisterWorkflow(wf)
	if err == nil {
		t.Fatal("expected error registering a workflow with an invalid cron expression")
	}

	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected the error chain to contain *ValidationError, got %T: %v", err, err)
	}
}

func TestSchedulerRegisterTriggerThenUnregister(t *testing.T) {
	prevUnit := intervalUnit
	intervalUnit = 10 * time.Millisecond
	defer func() { intervalUnit = prevUnit }()

	var counter atomic.Int32
	RegisterNodeType("counter_test", func(n service.WorkflowNode) (Noder, error) {
		return &counterNode{name: n.Name, counter: &counter}, nil
	})

	engine := NewEngine()
	sched := NewScheduler(engine, slog.Default())

	wf := intervalWorkflow("wf-3", "single-trigger-workflow", 1, "tally")
	if err := sched.RegisterTrigger(wf, "every-tick"); err != nil {
		t.Fatalf("RegisterTrigger: %v", err)
	}

	// Registering a workflow's only trigger a second time by name must
	// collide the same way a whole-workflow RegisterWorkflow would.
	if err := sched.RegisterTrigger(wf, "every-tick"); err == nil {
		t.Fatal("expected error re-registering the same trigger")
	}

	sched.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	sched.UnregisterTrigger(wf.Name, "every-tick")

	fireCountAfterUnregister := counter.Load()
	time.Sleep(25 * time.Millisecond)
	sched.Shutdown()

	if counter.Load() != fireCountAfterUnregister {
		t.Fatalf("trigger kept firing after UnregisterTrigger: %d fires before, %d after", fireCountAfterUnregister, counter.Load())
	}

	// Unregistering an unknown trigger is a no-op, not an error.
	sched.UnregisterTrigger(wf.Name, "never-registered")
}

func TestSchedulerRegisterTriggerIgnoresManualTrigger(t *testing.T) {
	engine := NewEngine()
	sched := NewScheduler(engine, slog.Default())
	defer sched.Shutdown()

	wf := &service.Workflow{
		ID:   "wf-4",
		Name: "manual-only-workflow",
		Graph: service.WorkflowGraph{
			Nodes:    []service.WorkflowNode{{Name: "start", Kind: "manual_trigger"}},
			Triggers: []string{"start"},
		},
	}

	if err := sched.RegisterTrigger(wf, "start"); err != nil {
		t.Fatalf("RegisterTrigger on a manual trigger should be a no-op, got error: %v", err)
	}
}

