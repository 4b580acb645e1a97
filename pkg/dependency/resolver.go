// Package dependency computes which fields are visible, required and enabled
// from the current form values and session settings, and which stored values
// must be cleared because their field became hidden.
package dependency

import (
	"fmt"
	"sort"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/visibility"
	"github.com/goliatone/go-schoolwizard/pkg/visibility/expr"
)

// Delta is the computed state of the fields affected by a change. Cleared
// lists fields hidden by their visibility rule whose stored value must be
// reset to nil.
type Delta struct {
	States  map[string]model.FieldState
	Cleared []string
}

// Empty reports whether the delta affects no field.
func (d Delta) Empty() bool {
	return len(d.States) == 0 && len(d.Cleared) == 0
}

// Fields returns the affected field names in sorted order.
func (d Delta) Fields() []string {
	names := make([]string, 0, len(d.States))
	for name := range d.States {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply writes the delta into the state map and clears hidden values.
func (d Delta) Apply(values model.Values, states map[string]model.FieldState) {
	for name, state := range d.States {
		if states != nil {
			states[name] = state
		}
	}
	for _, name := range d.Cleared {
		if values != nil {
			values[name] = nil
		}
	}
}

// Resolver evaluates field rules. It holds no per-session state, so calls
// with identical inputs yield identical deltas.
type Resolver struct {
	evaluator visibility.Evaluator
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEvaluator overrides the rule evaluator.
func WithEvaluator(evaluator visibility.Evaluator) Option {
	return func(r *Resolver) {
		if evaluator != nil {
			r.evaluator = evaluator
		}
	}
}

// New constructs a Resolver backed by the expr evaluator.
func New(options ...Option) *Resolver {
	r := &Resolver{evaluator: expr.New()}
	for _, opt := range options {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Recompute returns the state of every field that depends, directly or
// transitively, on changed.
func (r *Resolver) Recompute(ctx model.Context, pages model.Pages, values model.Values, changed string) (Delta, error) {
	return r.RecomputeAll(ctx, pages, values, []string{changed})
}

// RecomputeAll is Recompute for several changed fields at once. Each
// dependent is evaluated once.
func (r *Resolver) RecomputeAll(ctx model.Context, pages model.Pages, values model.Values, changed []string) (Delta, error) {
	dependents := Dependents(pages, changed...)
	return r.evaluate(ctx, values, dependents)
}

// Evaluate computes the state of every field in the page set.
func (r *Resolver) Evaluate(ctx model.Context, pages model.Pages, values model.Values) (Delta, error) {
	return r.evaluate(ctx, values, pages.Fields())
}

// evaluate walks fields so that governors come before their dependents and
// runs every rule against a working copy in which earlier clearings are
// already applied.
func (r *Resolver) evaluate(ctx model.Context, values model.Values, fields []model.Field) (Delta, error) {
	delta := Delta{States: make(map[string]model.FieldState, len(fields))}
	working := values.Clone()
	if working == nil {
		working = model.Values{}
	}
	env := Env(ctx, working)

	for _, field := range ordered(fields) {
		state, err := r.State(field, env, ctx)
		if err != nil {
			return Delta{}, err
		}
		delta.States[field.Name] = state
		if !state.Visible && !gated(field, ctx) {
			if value, ok := working.Get(field.Name); ok && value != nil {
				delta.Cleared = append(delta.Cleared, field.Name)
				working[field.Name] = nil
			}
		}
	}
	sort.Strings(delta.Cleared)
	return delta, nil
}

// ordered sorts fields topologically over DependsOn edges between them,
// keeping page order among independent fields. Fields on a cycle keep their
// page order after the rest.
func ordered(fields []model.Field) []model.Field {
	index := make(map[string]int, len(fields))
	for i, field := range fields {
		index[field.Name] = i
	}
	pending := make([]int, len(fields))
	dependents := make([][]int, len(fields))
	for i, field := range fields {
		for _, governor := range field.DependsOn {
			if j, ok := index[governor]; ok && j != i {
				pending[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	out := make([]model.Field, 0, len(fields))
	done := make([]bool, len(fields))
	for len(out) < len(fields) {
		next := -1
		for i := range fields {
			if !done[i] && pending[i] == 0 {
				next = i
				break
			}
		}
		if next < 0 {
			for i := range fields {
				if !done[i] {
					out = append(out, fields[i])
				}
			}
			break
		}
		done[next] = true
		out = append(out, fields[next])
		for _, i := range dependents[next] {
			pending[i]--
		}
	}
	return out
}

// gated reports whether field is hidden by the optional-field allow-list.
// Such fields are never shown, so their stored values are left untouched.
func gated(field model.Field, ctx model.Context) bool {
	return field.Optional && !ctx.Settings.OptionalVisible(field.Name)
}

// State evaluates a single field.
func (r *Resolver) State(field model.Field, env visibility.Env, ctx model.Context) (model.FieldState, error) {
	visible := !gated(field, ctx)
	if visible && field.VisibleWhen != "" {
		ok, err := r.evaluator.Eval(field.Name, field.VisibleWhen, env)
		if err != nil {
			return model.FieldState{}, fmt.Errorf("dependency: visibility of %s: %w", field.Name, err)
		}
		visible = ok
	}

	required := field.Required
	if field.RequiredWhen != "" {
		ok, err := r.evaluator.Eval(field.Name, field.RequiredWhen, env)
		if err != nil {
			return model.FieldState{}, fmt.Errorf("dependency: required of %s: %w", field.Name, err)
		}
		required = required || ok
	}

	enabled := !field.Disabled
	if enabled && field.EnabledWhen != "" {
		ok, err := r.evaluator.Eval(field.Name, field.EnabledWhen, env)
		if err != nil {
			return model.FieldState{}, fmt.Errorf("dependency: enabled of %s: %w", field.Name, err)
		}
		enabled = ok
	}

	return model.FieldState{
		Visible:  visible,
		Required: visible && required,
		Enabled:  enabled,
	}, nil
}

// Dependents returns, in page order, every field that depends on one of the
// changed fields, following DependsOn transitively. The changed fields
// themselves are excluded unless another changed field governs them.
func Dependents(pages model.Pages, changed ...string) []model.Field {
	fields := pages.Fields()
	marked := make(map[string]bool)
	queue := append([]string(nil), changed...)

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, field := range fields {
			if marked[field.Name] || !field.DependsOnField(current) {
				continue
			}
			marked[field.Name] = true
			queue = append(queue, field.Name)
		}
	}

	out := make([]model.Field, 0, len(marked))
	for _, field := range fields {
		if marked[field.Name] {
			out = append(out, field)
		}
	}
	return out
}

// Env builds the rule environment for a session: current values plus the
// extras `edit`, `create`, `optional` (allow-list) and `config` (raw
// settings).
func Env(ctx model.Context, values model.Values) visibility.Env {
	optional := append([]string(nil), ctx.Settings.OptionalVisibleFields...)
	config := make(map[string]string, len(ctx.Settings.Raw))
	for key, value := range ctx.Settings.Raw {
		config[key] = value
	}
	return visibility.Env{
		Values: map[string]any(values),
		Extras: map[string]any{
			"edit":     ctx.Editing(),
			"create":   !ctx.Editing(),
			"optional": optional,
			"config":   config,
		},
	}
}
