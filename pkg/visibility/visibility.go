// Package visibility defines the contract used to decide whether a field is
// shown, required or enabled from a rule string and the current form values.
package visibility

// Evaluator resolves a rule for the named field against an Env.
type Evaluator interface {
	Eval(field, rule string, env Env) (bool, error)
}

// Env provides the inputs a rule can reference. Values holds the current form
// values; Extras carries session context such as the mode, the optional-field
// allow-list or configuration values (referenced with the `extras.` prefix).
type Env struct {
	Values map[string]any
	Extras map[string]any
}

// EvaluatorFunc adapts a function into an Evaluator.
type EvaluatorFunc func(field, rule string, env Env) (bool, error)

// Eval delegates to the underlying function.
func (fn EvaluatorFunc) Eval(field, rule string, env Env) (bool, error) {
	return fn(field, rule, env)
}
