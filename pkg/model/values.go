package model

import (
	"fmt"
	"strings"
)

// Values maps field names to their current value.
type Values map[string]any

// Clone deep-copies the value map.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for key, value := range v {
		out[key] = deepCopy(value)
	}
	return out
}

// Get returns the value stored under name.
func (v Values) Get(name string) (any, bool) {
	if v == nil {
		return nil, false
	}
	value, ok := v[name]
	return value, ok
}

// String renders the value stored under name as a trimmed string. Nil and
// missing values yield "".
func (v Values) String(name string) string {
	value, ok := v.Get(name)
	if !ok || value == nil {
		return ""
	}
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case []any:
		if len(typed) == 0 || typed[0] == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(typed[0]))
	case []string:
		if len(typed) == 0 {
			return ""
		}
		return strings.TrimSpace(typed[0])
	default:
		return strings.TrimSpace(fmt.Sprint(typed))
	}
}

// Prune removes every key not declared by the page set.
func (v Values) Prune(pages Pages) Values {
	known := make(map[string]struct{})
	for _, field := range pages.Fields() {
		known[field.Name] = struct{}{}
	}
	for key := range v {
		if _, ok := known[key]; !ok {
			delete(v, key)
		}
	}
	return v
}

// Defaults builds a fresh value map holding every field's default.
func Defaults(pages Pages) Values {
	out := make(Values)
	for _, field := range pages.Fields() {
		out[field.Name] = deepCopy(field.Default)
	}
	return out
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		clone := make(map[string]any, len(typed))
		for k, v := range typed {
			clone[k] = deepCopy(v)
		}
		return clone
	case Values:
		return typed.Clone()
	case []any:
		clone := make([]any, len(typed))
		for i, v := range typed {
			clone[i] = deepCopy(v)
		}
		return clone
	case []string:
		return append([]string(nil), typed...)
	default:
		return typed
	}
}
