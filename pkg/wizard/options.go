package wizard

import (
	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	mode       model.Mode
	target     string
	initial    model.Values
	logger     zerolog.Logger
	maxCycles  int
	validators []validation.Option
}

// WithEdit opens the wizard on an existing record.
func WithEdit(target string) Option {
	return func(c *openConfig) {
		c.mode = model.ModeEdit
		c.target = target
	}
}

// WithValues seeds initial values. They become part of the session's
// defaults and survive the create-another reset.
func WithValues(values model.Values) Option {
	return func(c *openConfig) {
		if c.initial == nil {
			c.initial = model.Values{}
		}
		for key, value := range values {
			c.initial[key] = value
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *openConfig) {
		c.logger = logger
	}
}

// WithMaxWarningCycles caps warning confirmations per submission.
func WithMaxWarningCycles(n int) Option {
	return func(c *openConfig) {
		c.maxCycles = n
	}
}

// WithValidatorOptions forwards options to the field validator.
func WithValidatorOptions(options ...validation.Option) Option {
	return func(c *openConfig) {
		c.validators = append(c.validators, options...)
	}
}
