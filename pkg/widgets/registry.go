// Package widgets picks the prompt widget used to edit a wizard field.
package widgets

import (
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

// Built-in widget identifiers exposed by the registry.
const (
	WidgetInput    = "input"
	WidgetList     = "list"
	WidgetConfirm  = "confirm"
	WidgetDate     = "date"
	WidgetPassword = "password"
	WidgetSelect   = "select"
)

// MetadataKey is the field metadata entry that names a widget explicitly.
const MetadataKey = "widget"

// Matcher decides whether a widget should handle the supplied field.
type Matcher func(field model.Field) bool

type rule struct {
	name     string
	priority int
	match    Matcher
}

// Registry selects widgets for fields based on explicit metadata or
// registered matchers. Higher priority wins; ties fall back to registration
// order. Fields no matcher claims resolve to WidgetInput.
type Registry struct {
	mu    sync.RWMutex
	rules []rule
}

var builtins = []rule{
	{WidgetConfirm, 90, func(f model.Field) bool { return f.Kind == model.FieldKindBoolean }},
	{WidgetSelect, 80, func(f model.Field) bool {
		return !f.IsMulti() && (f.Kind == model.FieldKindChoice || len(f.Choices) > 0 || f.Remote != nil)
	}},
	{WidgetList, 70, func(f model.Field) bool { return f.IsMulti() }},
	{WidgetPassword, 60, func(f model.Field) bool { return f.Kind == model.FieldKindPassword }},
	{WidgetDate, 50, func(f model.Field) bool { return f.Kind == model.FieldKindDate }},
}

// NewRegistry constructs a registry with the built-in matchers registered.
func NewRegistry() *Registry {
	return &Registry{rules: append([]rule(nil), builtins...)}
}

// Register adds a matcher. Rules are kept ordered by descending priority;
// a new rule goes after existing rules of the same priority.
func (r *Registry) Register(name string, priority int, matcher Matcher) {
	name = strings.TrimSpace(name)
	if r == nil || matcher == nil || name == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	at := sort.Search(len(r.rules), func(i int) bool {
		return r.rules[i].priority < priority
	})
	r.rules = slices.Insert(r.rules, at, rule{name: name, priority: priority, match: matcher})
}

// Resolve returns the widget name for a field.
func (r *Registry) Resolve(field model.Field) string {
	if explicit := strings.TrimSpace(field.Metadata[MetadataKey]); explicit != "" {
		return explicit
	}
	if r == nil {
		return WidgetInput
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, entry := range r.rules {
		if entry.match(field) {
			return entry.name
		}
	}
	return WidgetInput
}
