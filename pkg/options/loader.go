// Package options loads the dynamic choice sets of wizard fields (for
// example the classes of the selected school) keyed by the value of a
// governing field.
package options

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

// Result is the outcome of a load: the replacement choice set and the value
// that should be selected afterwards (the prior value in edit mode, nil
// otherwise).
type Result struct {
	Choices  []model.Choice
	Selected any
}

// Loader fetches choices from a model.ChoiceSource.
type Loader struct {
	source model.ChoiceSource
	logger zerolog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader wraps source.
func NewLoader(source model.ChoiceSource, options ...Option) *Loader {
	l := &Loader{source: source, logger: zerolog.Nop()}
	for _, opt := range options {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Load returns the choices for governing. An empty governing value yields an
// empty result without contacting the source. When prior is set it takes the
// first slot of the returned choices whether or not the catalogue knows it.
func (l *Loader) Load(ctx context.Context, governing string, prior any) (Result, error) {
	governing = strings.TrimSpace(governing)
	if governing == "" {
		return Result{Choices: []model.Choice{}}, nil
	}
	if l == nil || l.source == nil {
		return Result{}, fmt.Errorf("options: no source configured")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	choices, err := l.source.Choices(ctx, governing)
	if err != nil {
		l.logger.Warn().Err(err).Str("governing", governing).Msg("loading choices failed")
		return Result{}, fmt.Errorf("options: load choices for %q: %w", governing, err)
	}
	l.logger.Debug().Str("governing", governing).Int("count", len(choices)).Msg("choices loaded")

	result := Result{Choices: append([]model.Choice{}, choices...)}
	if priorID := priorValue(prior); priorID != "" {
		result.Choices = PreferPrior(result.Choices, priorID)
		result.Selected = priorID
	}
	return result, nil
}

// PreferPrior places priorID in the first slot, keeping the catalogue label
// when the value is known and synthesising one otherwise.
func PreferPrior(choices []model.Choice, priorID string) []model.Choice {
	out := make([]model.Choice, 0, len(choices)+1)
	first := model.Choice{ID: priorID, Label: priorID}
	for _, choice := range choices {
		if choice.ID == priorID {
			first = choice
			continue
		}
		out = append(out, choice)
	}
	return append([]model.Choice{first}, out...)
}

func priorValue(prior any) string {
	switch typed := prior.(type) {
	case nil:
		return ""
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

// Contains reports whether id is one of choices.
func Contains(choices []model.Choice, id string) bool {
	for _, choice := range choices {
		if choice.ID == id {
			return true
		}
	}
	return false
}
