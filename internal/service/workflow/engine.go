package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flowloom/loom/internal/service"
)

// Engine walks a workflow graph breadth-first against a fresh Context per
// run. It holds no state between runs, and since every run builds its own
// node values, neither do the nodes: a ScheduleTrigger's last-fire
// timestamp lives only on the node value of the run that set it.
type Engine struct{}

// NewEngine creates a workflow execution engine.
func NewEngine() *Engine {
	return &Engine{}
}

// Run executes graph starting from triggerName. If triggerName is empty,
// every ManualTrigger node in the graph is fired, in declared order;
// ScheduleTrigger nodes are never auto-selected — only the scheduler fires
// them, by passing their name explicitly.
func (e *Engine) Run(ctx context.Context, graph service.WorkflowGraph, triggerName string, logger *slog.Logger) (*Context, error) {
	nodes, err := Build(graph)
	if err != nil {
		return nil, err
	}

	ec := NewContext(logger)

	entries, err := entryNodes(graph, nodes, triggerName)
	if err != nil {
		return nil, err
	}

	visited := make(map[string]bool, len(nodes))
	var queue []string

	for _, name := range entries {
		if visited[name] {
			continue
		}
		visited[name] = true

		result, execErr := runNode(ctx, nodes[name], ec)
		if execErr != nil {
			continue
		}
		if isEmptyResult(result) {
			// Open question (resolved): an empty/falsy trigger result does
			// not propagate to successors.
			continue
		}
		queue = append(queue, graph.Connections[name]...)
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if visited[name] {
			// Diamond join: first-visit wins, re-entry is a no-op.
			continue
		}
		visited[name] = true

		node, ok := nodes[name]
		if !ok {
			continue
		}

		_, execErr := runNode(ctx, node, ec)
		if execErr != nil {
			// Failure containment: successors of a failing node are not
			// enqueued, but the rest of the queue still runs.
			continue
		}

		queue = append(queue, graph.Connections[name]...)
	}

	return ec, nil
}

// runNode executes one node, recording its outcome on ec. Panics are
// converted into the same contained-error path as a NodeExecutionError,
// since Go has no distinct "unexpected exception" type to catch.
func runNode(ctx context.Context, node Noder, ec *Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("Unexpected error in node %s: %v", node.Name(), r)
			ec.AddError(msg)
			err = errors.New(msg)
			result = nil
		}
	}()

	result, err = node.Execute(ctx, ec)
	if err != nil {
		var nee *NodeExecutionError
		if errors.As(err, &nee) {
			ec.AddError(fmt.Sprintf("Error in node %s: %s", node.Name(), nee.Reason))
		} else {
			ec.AddError(fmt.Sprintf("Unexpected error in node %s: %v", node.Name(), err))
		}
		return nil, err
	}

	ec.Set(node.Name(), result)
	ec.AddHistory(node.Name())
	return result, nil
}

// isEmptyResult reports whether a trigger's result should be treated as
// "nothing fired" — nil or an empty map.
func isEmptyResult(result any) bool {
	if result == nil {
		return true
	}
	if m, ok := result.(map[string]any); ok {
		return len(m) == 0
	}
	return false
}

// entryNodes resolves the set of node names to fire first. An explicit
// triggerName fires exactly that node (used by the scheduler to fire a
// ScheduleTrigger); an empty triggerName fires every ManualTrigger node,
// in the order nodes were declared.
func entryNodes(graph service.WorkflowGraph, nodes map[string]Noder, triggerName string) ([]string, error) {
	if triggerName != "" {
		if _, ok := nodes[triggerName]; !ok {
			return nil, &ValidationError{Node: triggerName, Reason: "trigger not found in workflow"}
		}
		return []string{triggerName}, nil
	}

	triggerSet := make(map[string]bool, len(graph.Triggers))
	for _, t := range graph.Triggers {
		triggerSet[t] = true
	}

	var entries []string
	for _, n := range graph.Nodes {
		if !triggerSet[n.Name] {
			continue
		}
		t, ok := nodes[n.Name].(IsTrigger)
		if !ok || t.TriggerKind() != "manual" {
			continue
		}
		entries = append(entries, n.Name)
	}
	return entries, nil
}

// Build validates the graph's structural invariants and instantiates a
// Noder for every node via its registered factory. Exported so the
// scheduler can instantiate ScheduleTrigger nodes to read their firing
// configuration at registration time.
func Build(graph service.WorkflowGraph) (map[string]Noder, error) {
	if len(graph.Nodes) == 0 {
		return nil, &ValidationError{Reason: "workflow has no nodes"}
	}
	if len(graph.Triggers) == 0 {
		return nil, &ValidationError{Reason: "workflow has no trigger nodes"}
	}

	nodes := make(map[string]Noder, len(graph.Nodes))
	for _, n := range graph.Nodes {
		if _, dup := nodes[n.Name]; dup {
			return nil, &ValidationError{Node: n.Name, Reason: "duplicate node name"}
		}

		factory := GetNodeFactory(n.Kind)
		if factory == nil {
			return nil, &ValidationError{Node: n.Name, Reason: fmt.Sprintf("unknown node kind %q", n.Kind)}
		}

		noder, err := factory(n)
		if err != nil {
			return nil, &ValidationError{Node: n.Name, Reason: "create node", Cause: err}
		}
		nodes[n.Name] = noder
	}

	for src, targets := range graph.Connections {
		if _, ok := nodes[src]; !ok {
			return nil, &ValidationError{Node: src, Reason: "connection source not found in node set"}
		}
		for _, tgt := range targets {
			if _, ok := nodes[tgt]; !ok {
				return nil, &ValidationError{Node: tgt, Reason: "connection target not found in node set"}
			}
		}
	}

	for _, trig := range graph.Triggers {
		if _, ok := nodes[trig]; !ok {
			return nil, &ValidationError{Node: trig, Reason: "declared trigger not found in node set"}
		}
	}

	for name, noder := range nodes {
		if err := noder.ValidateParameters(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return nil, err
			}
			return nil, &ValidationError{Node: name, Reason: err.Error(), Cause: err}
		}
	}

	return nodes, nil
}
