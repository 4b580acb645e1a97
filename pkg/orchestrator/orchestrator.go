package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/renderers/tui"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

// Built-in wizard names.
const (
	WizardComputer = "computer"
	WizardUser     = "user"
)

// Runner drives an open session to completion.
type Runner interface {
	Run(ctx context.Context, session tui.Session) (tui.Summary, error)
}

// Option customises the orchestrator configuration.
type Option func(*Orchestrator)

// WithChannel sets the remote channel every wizard talks to.
func WithChannel(channel remote.Channel) Option {
	return func(o *Orchestrator) {
		o.channel = channel
	}
}

// WithRegistry injects a wizard registry.
func WithRegistry(registry *Registry) Option {
	return func(o *Orchestrator) {
		o.registry = registry
	}
}

// WithRunner overrides the terminal runner.
func WithRunner(runner Runner) Option {
	return func(o *Orchestrator) {
		o.runner = runner
	}
}

// WithLogger attaches a logger passed on to sessions and the default runner.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSessionOptions appends options applied to every opened session.
func WithSessionOptions(options ...wizard.Option) Option {
	return func(o *Orchestrator) {
		o.sessionOptions = append(o.sessionOptions, options...)
	}
}

// Orchestrator resolves wizards by name, opens sessions on the configured
// channel and hands them to the runner.
type Orchestrator struct {
	channel        remote.Channel
	registry       *Registry
	runner         Runner
	logger         zerolog.Logger
	sessionOptions []wizard.Option
}

// New constructs an Orchestrator. Without a registry the computer and user
// wizards are registered; without a runner the survey shell is used.
func New(options ...Option) *Orchestrator {
	o := &Orchestrator{logger: zerolog.Nop()}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewRegistry()
		o.registry.MustRegister(WizardComputer, schoolwizards.Computer)
		o.registry.MustRegister(WizardUser, schoolwizards.User)
	}
	if o.runner == nil {
		o.runner = tui.New(tui.WithLogger(o.logger))
	}
	return o
}

// Request selects the wizard to run.
type Request struct {
	// Wizard names a registered wizard.
	Wizard string

	// Target is the DN of the record to edit. Empty creates new records.
	Target string

	// Values preset fields, e.g. the school.
	Values model.Values
}

// Wizards lists the registered wizard names.
func (o *Orchestrator) Wizards() []string {
	return o.registry.List()
}

// Open resolves the wizard and opens a session for req.
func (o *Orchestrator) Open(ctx context.Context, req Request) (*wizard.Session, error) {
	if ctx == nil {
		return nil, errors.New("orchestrator: context is required")
	}
	if o.channel == nil {
		return nil, errors.New("orchestrator: channel is required")
	}
	factory, err := o.registry.Get(req.Wizard)
	if err != nil {
		return nil, err
	}

	opts := []wizard.Option{wizard.WithLogger(o.logger.With().Str("wizard", req.Wizard).Logger())}
	if req.Target != "" {
		opts = append(opts, wizard.WithEdit(req.Target))
	}
	if len(req.Values) > 0 {
		opts = append(opts, wizard.WithValues(req.Values))
	}
	opts = append(opts, o.sessionOptions...)

	session, err := wizard.Open(ctx, factory(o.channel), opts...)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open %s: %w", req.Wizard, err)
	}
	return session, nil
}

// Run opens a session for req and drives it with the runner. The session is
// closed when Run returns.
func (o *Orchestrator) Run(ctx context.Context, req Request) (tui.Summary, error) {
	session, err := o.Open(ctx, req)
	if err != nil {
		return tui.Summary{}, err
	}
	defer session.Close()

	summary, err := o.runner.Run(ctx, session)
	if err != nil {
		return summary, fmt.Errorf("orchestrator: run %s: %w", req.Wizard, err)
	}
	o.logger.Info().
		Str("wizard", req.Wizard).
		Int("created", summary.Created).
		Bool("updated", summary.Updated).
		Bool("cancelled", summary.Cancelled).
		Msg("wizard finished")
	return summary, nil
}
