// Package envsub rewrites placeholder references in tool call traffic. a
// rule binds a placeholder name to a real value; expansion replaces ${NAME}
// with the value on the way to a backend, and unexpansion replaces the value
// with ${NAME} on the way back, so secrets never surface in responses.
package envsub

import "strings"

// Rule binds a placeholder name to the value it stands for.
type Rule struct {
	Name  string
	Value string
}

// Rules is an ordered list of substitution rules.
type Rules []Rule

func (r Rule) placeholder() string {
	return "${" + r.Name + "}"
}

// Expand replaces every ${NAME} occurrence in s with the rule's value.
func (rs Rules) Expand(s string) string {
	for _, r := range rs {
		if r.Name == "" {
			continue
		}
		s = strings.ReplaceAll(s, r.placeholder(), r.Value)
	}
	return s
}

// Unexpand replaces every rule value occurrence in s with its ${NAME} form.
// this is the inverse of Expand over round-tripped text.
func (rs Rules) Unexpand(s string) string {
	for _, r := range rs {
		if r.Name == "" || r.Value == "" {
			continue
		}
		s = strings.ReplaceAll(s, r.Value, r.placeholder())
	}
	return s
}

// ExpandMap returns a copy of args with Expand applied to every string
// value, descending through nested maps and slices. args is never mutated.
func (rs Rules) ExpandMap(args map[string]any) map[string]any {
	if args == nil || len(rs) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = rs.expandValue(v)
	}
	return out
}

func (rs Rules) expandValue(v any) any {
	switch tv := v.(type) {
	case string:
		return rs.Expand(tv)
	case map[string]any:
		out := make(map[string]any, len(tv))
		for k, nv := range tv {
			out[k] = rs.expandValue(nv)
		}
		return out
	case []any:
		out := make([]any, len(tv))
		for i, nv := range tv {
			out[i] = rs.expandValue(nv)
		}
		return out
	default:
		return v
	}
}
