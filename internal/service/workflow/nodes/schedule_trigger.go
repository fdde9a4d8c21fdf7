package nodes

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
	"github.com/robfig/cron/v3"

	"context"
)

func init() {
	workflow.RegisterNodeType("schedule_trigger", newScheduleTrigger)
}

// scheduleTrigger fires on a cron schedule or a fixed interval, as
// installed by the scheduler. It is never an entry node for a manual run;
// the engine only ever invokes it by explicit name.
//
// lastExecution is set by Execute (through MarkFired) on the node value of
// the current run. Engine.Run builds fresh node values for every run, so
// the timestamp is not carried from one fire to the next, and nothing in
// this repository reads it back. It is an atomic.Pointer so concurrent
// use of one node value stays safe.
type scheduleTrigger struct {
	name         string
	scheduleType string // "cron" or "interval"
	cronExpr     string
	intervalMin  int
	timezone     string

	lastExecution atomic.Pointer[time.Time]
}

func newScheduleTrigger(n service.WorkflowNode) (workflow.Noder, error) {
	t := &scheduleTrigger{name: n.Name}

	if v, ok := n.Parameters["schedule_type"].(string); ok {
		t.scheduleType = v
	}
	if v, ok := n.Parameters["cron_expression"].(string); ok {
		t.cronExpr = v
	}
	switch v := n.Parameters["interval_minutes"].(type) {
	case int:
		t.intervalMin = v
	case float64:
		t.intervalMin = int(v)
	}
	t.timezone = "UTC"
	if v, ok := n.Parameters["timezone"].(string); ok && v != "" {
		t.timezone = v
	}

	return t, nil
}

func (t *scheduleTrigger) Name() string { return t.name }
func (t *scheduleTrigger) Kind() string { return "schedule_trigger" }

func (t *scheduleTrigger) TriggerKind() string {
	if t.scheduleType == "cron" {
		return "schedule_cron"
	}
	return "schedule_interval"
}

// ScheduleType reports the configured trigger mode, read by the
// scheduler when deciding whether to install a cron job or a ticker.
func (t *scheduleTrigger) ScheduleType() string { return t.scheduleType }

// CronExpression returns the configured standard 5-field cron expression.
func (t *scheduleTrigger) CronExpression() string { return t.cronExpr }

// IntervalMinutes returns the configured fixed-interval period.
func (t *scheduleTrigger) IntervalMinutes() int { return t.intervalMin }

// Timezone returns the configured IANA zone name, used by the scheduler
// to evaluate cron expressions in local time.
func (t *scheduleTrigger) Timezone() string { return t.timezone }

// MarkFired records at as this trigger's last execution.
func (t *scheduleTrigger) MarkFired(at time.Time) {
	t.lastExecution.Store(&at)
}

func (t *scheduleTrigger) ValidateParameters() error {
	switch t.scheduleType {
	case "cron":
		if t.cronExpr == "" {
			return &workflow.ValidationError{Node: t.name, Reason: "cron_expression is required when schedule_type is cron"}
		}
		if _, err := cron.ParseStandard(t.cronExpr); err != nil {
			return &workflow.ValidationError{Node: t.name, Reason: "invalid cron_expression", Cause: err}
		}
	case "interval":
		if t.intervalMin <= 0 {
			return &workflow.ValidationError{Node: t.name, Reason: "interval_minutes must be a positive integer"}
		}
	default:
		return &workflow.ValidationError{Node: t.name, Reason: fmt.Sprintf("schedule_type must be %q or %q, got %q", "cron", "interval", t.scheduleType)}
	}

	if _, err := time.LoadLocation(t.timezone); err != nil {
		return &workflow.ValidationError{Node: t.name, Reason: "invalid timezone", Cause: err}
	}

	return nil
}

func (t *scheduleTrigger) Execute(_ context.Context, _ *workflow.Context) (any, error) {
	now := time.Now().UTC()
	if loc, err := time.LoadLocation(t.timezone); err == nil {
		now = now.In(loc)
	}
	t.MarkFired(now)

	return map[string]any{
		"trigger_type":  "schedule",
		"schedule_type": t.scheduleType,
		"timestamp":     now.Format(time.RFC3339),
		"timezone":      t.timezone,
	}, nil
}
