package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/flowloom/loom/internal/service"
	"github.com/flowloom/loom/internal/service/workflow"
)

func init() {
	workflow.RegisterNodeType("transform", newTransform)
}

// transform applies a single operation to an upstream value addressed by
// input_key, a dotted path into the run's context data (the same
// addressing convention SendEmail's templates use).
type transform struct {
	name      string
	operation string
	inputKey  string
	field     string
}

func newTransform(n service.WorkflowNode) (workflow.Noder, error) {
	t := &transform{name: n.Name}

	if v, ok := n.Parameters["operation"].(string); ok {
		t.operation = v
	}
	if v, ok := n.Parameters["input_key"].(string); ok {
		t.inputKey = v
	}
	if v, ok := n.Parameters["field"].(string); ok {
		t.field = v
	}

	return t, nil
}

func (t *transform) Name() string { return t.name }
func (t *transform) Kind() string { return "transform" }

func (t *transform) ValidateParameters() error {
	switch t.operation {
	case "uppercase":
	case "extract_field":
		if t.field == "" {
			return &workflow.ValidationError{Node: t.name, Reason: "field is required for extract_field"}
		}
	default:
		return &workflow.ValidationError{Node: t.name, Reason: fmt.Sprintf("unsupported operation %q", t.operation)}
	}
	if t.inputKey == "" {
		return &workflow.ValidationError{Node: t.name, Reason: "input_key is required"}
	}
	return nil
}

func (t *transform) Execute(_ context.Context, ec *workflow.Context) (any, error) {
	input, err := resolvePath(t.inputKey, ec.Data())
	if err != nil {
		return nil, &workflow.NodeExecutionError{Node: t.name, Reason: err.Error(), Cause: err}
	}

	switch t.operation {
	case "uppercase":
		s, ok := input.(string)
		if !ok {
			return nil, &workflow.NodeExecutionError{Node: t.name, Reason: "uppercase requires a string input"}
		}
		return strings.ToUpper(s), nil

	case "extract_field":
		m, ok := input.(map[string]any)
		if !ok {
			return nil, &workflow.NodeExecutionError{Node: t.name, Reason: "extract_field requires a mapping input"}
		}
		val, ok := m[t.field]
		if !ok {
			return nil, nil
		}
		return val, nil

	default:
		return nil, &workflow.NodeExecutionError{Node: t.name, Reason: fmt.Sprintf("unsupported operation %q", t.operation)}
	}
}

// resolvePath walks a dotted path ("H.body") through a map[string]any /
// []any tree, the same traversal tplengine uses for template expressions.
func resolvePath(path string, data map[string]any) (any, error) {
	segments := strings.Split(path, ".")
	var current any = data

	for i, seg := range segments {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("input_key %q: field %q not found", path, strings.Join(segments[:i+1], "."))
			}
			current = next
		case []any:
			idx, convErr := strconv.Atoi(seg)
			if convErr != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("input_key %q: invalid index %q", path, seg)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("input_key %q: cannot descend into %q", path, seg)
		}
	}

	return current, nil
}
