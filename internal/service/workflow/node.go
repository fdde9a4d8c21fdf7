// Package workflow implements a graph-based workflow execution engine:
// a fixed family of typed nodes (triggers, HTTP requests, transforms,
// templated email) wired into a graph and walked breadth-first against a
// per-run execution context, plus a process-wide scheduler that fires
// schedule-trigger nodes on cron or fixed-interval timers.
package workflow

import (
	"context"
	"time"

	"github.com/flowloom/loom/internal/service"
)

// Noder is the interface every node kind implements. Build creates fresh
// node values for every engine run, so no node carries state from one run
// to the next; ScheduleTrigger records its fire time only on the node
// value of the run it fires in.
type Noder interface {
	// Name is the node's unique-within-workflow identifier, the key its
	// result is stored under in the run's Context.
	Name() string

	// Kind is the node type name (e.g. "http_request").
	Kind() string

	// ValidateParameters checks the node's configuration. Called once,
	// before the node is ever run; returns *ValidationError on failure.
	ValidateParameters() error

	// Execute performs the node's work and returns its result, which the
	// engine stores under Name() in the run's Context. Returns
	// *NodeExecutionError for expected failure modes (bad HTTP response,
	// SMTP failure, template error, type mismatch).
	Execute(ctx context.Context, ec *Context) (any, error)
}

// IsTrigger is implemented by node kinds that can originate a run
// (ManualTrigger, ScheduleTrigger). The engine uses it to pick entry
// nodes when no explicit trigger name is given.
type IsTrigger interface {
	Noder
	TriggerKind() string // "manual", "schedule_cron", or "schedule_interval"
}

// ScheduleSource is implemented by ScheduleTrigger, exposing its firing
// configuration to the scheduler without the scheduler needing to know
// the concrete node type.
type ScheduleSource interface {
	IsTrigger
	ScheduleType() string    // "cron" or "interval"
	CronExpression() string  // standard 5-field cron, when ScheduleType is "cron"
	IntervalMinutes() int    // fixed period in minutes, when ScheduleType is "interval"
	Timezone() string        // IANA zone name to evaluate cron expressions in
	MarkFired(at time.Time)  // records the trigger's last fire time
}

// NodeFactory builds a Noder from its graph definition. Each node kind
// registers a factory via RegisterNodeType from an init() function in the
// nodes package.
type NodeFactory func(node service.WorkflowNode) (Noder, error)

var nodeFactories = make(map[string]NodeFactory)

// RegisterNodeType registers the factory for a node kind name.
func RegisterNodeType(kind string, factory NodeFactory) {
	nodeFactories[kind] = factory
}

// GetNodeFactory returns the factory registered for kind, or nil.
func GetNodeFactory(kind string) NodeFactory {
	return nodeFactories[kind]
}

// RegisteredNodeKinds returns all registered node kind names.
func RegisteredNodeKinds() []string {
	kinds := make([]string, 0, len(nodeFactories))
	for k := range nodeFactories {
		kinds = append(kinds, k)
	}
	return kinds
}
