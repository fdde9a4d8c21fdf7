// Package tplengine renders the small "{{ expr }}" dotted-path
// interpolation syntax used by SendEmail's subject/body templates.
//
// This is deliberately not built on text/template or any third-party
// template wrapper: the contract is flat dotted-field substitution against
// a map[string]any tree with no pipelines, conditionals, or function calls
// — a dependency would buy nothing a dozen lines of strings.Index don't
// already cover.
package tplengine

import (
	"fmt"
	"strconv"
	"strings"
)

// Render replaces every "{{ expr }}" span in tmpl with the value of expr
// looked up in data via dotted field access (e.g. "HttpCall.body.title").
// Whitespace around expr is trimmed. A span whose path cannot be resolved
// returns an error naming the offending expression.
func Render(tmpl string, data map[string]any) (string, error) {
	var out strings.Builder
	rest := tmpl

	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return "", fmt.Errorf("tplengine: unterminated %q in template", "{{")
		}
		end += start

		out.WriteString(rest[:start])

		expr := strings.TrimSpace(rest[start+2 : end])
		val, err := lookup(expr, data)
		if err != nil {
			return "", err
		}
		out.WriteString(stringify(val))

		rest = rest[end+2:]
	}

	return out.String(), nil
}

// lookup resolves a dotted path ("a.b.c") against data, descending into
// nested maps and, for numeric segments, slices.
func lookup(path string, data map[string]any) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("tplengine: empty expression")
	}

	segments := strings.Split(path, ".")
	var current any = data

	for i, seg := range segments {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, fmt.Errorf("tplengine: %q: field %q not found", path, strings.Join(segments[:i+1], "."))
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, fmt.Errorf("tplengine: %q: invalid index %q", path, seg)
			}
			current = v[idx]
		default:
			return nil, fmt.Errorf("tplengine: %q: cannot descend into %q on non-object value", path, seg)
		}
	}

	return current, nil
}

// stringify renders a resolved value as it would appear inlined in text.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
