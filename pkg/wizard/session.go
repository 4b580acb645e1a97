// Package wizard runs one multi-page create or edit session: it owns the page
// order, applies field dependencies and remote choices, submits through the
// submission protocol and implements the create-another loop.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/goliatone/go-schoolwizard/pkg/dependency"
	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/options"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

var (
	// ErrSessionClosed is returned by operations on, and results arriving
	// for, a closed session.
	ErrSessionClosed = errors.New("wizard: session closed")
	// ErrUnknownField is returned by Set for undeclared fields.
	ErrUnknownField = errors.New("wizard: unknown field")
	// ErrFieldDisabled is returned by Set for hidden or disabled fields.
	ErrFieldDisabled = errors.New("wizard: field is not editable")

	ErrBusy              = submission.ErrBusy
	ErrInvalidTransition = submission.ErrInvalidTransition
)

// Session is one open wizard. All methods are safe for concurrent use; at
// most one network operation is outstanding at a time.
type Session struct {
	mu sync.Mutex

	def       Definition
	ctx       model.Context
	pages     model.Pages
	resolver  *dependency.Resolver
	validator *validation.Validator
	protocol  *submission.Protocol
	loaders   map[string]*options.Loader
	logger    zerolog.Logger

	defaults model.Values
	values   model.Values
	states   map[string]model.FieldState
	choices  map[string][]model.Choice
	changed  map[string]struct{}
	notes    []string
	page     int

	busy       bool
	closed     bool
	generation string

	submitted    model.Values
	submitStates map[string]model.FieldState
}

// Open fetches configuration (and the edited record) once, builds the pages
// and seeds values, field states and remote choices.
func Open(ctx context.Context, def Definition, opts ...Option) (*Session, error) {
	cfg := openConfig{mode: model.ModeCreate, logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if def.Build == nil {
		return nil, errors.New("wizard: definition has no page builder")
	}
	if def.Store == nil {
		return nil, errors.New("wizard: definition has no record store")
	}
	if cfg.mode == model.ModeEdit && def.Fetch == nil {
		return nil, fmt.Errorf("wizard: %s cannot edit without a fetch function", def.Name)
	}

	var (
		raw    map[string]string
		loaded model.Values
	)
	g, gctx := errgroup.WithContext(ctx)
	if def.Config != nil {
		g.Go(func() error {
			values, err := def.Config.GetConfig(gctx, def.configKeys())
			if err != nil {
				return fmt.Errorf("wizard: load configuration: %w", err)
			}
			raw = values
			return nil
		})
	}
	if cfg.mode == model.ModeEdit {
		g.Go(func() error {
			values, err := def.Fetch(gctx, cfg.target)
			if err != nil {
				return fmt.Errorf("wizard: load %s: %w", cfg.target, err)
			}
			loaded = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	wctx := model.Context{
		ID:       uuid.NewString(),
		Mode:     cfg.mode,
		Settings: model.ParseSettings(raw),
		Loaded:   loaded.Clone(),
		Target:   cfg.target,
	}
	pages := def.Pages(wctx)
	if len(pages) == 0 {
		return nil, fmt.Errorf("wizard: %s has no pages", def.Name)
	}

	defaults := model.Defaults(pages)
	for key, value := range cfg.initial.Clone().Prune(pages) {
		defaults[key] = value
	}
	values := defaults.Clone()
	if wctx.Editing() {
		for key, value := range loaded.Clone().Prune(pages) {
			values[key] = value
		}
	}

	fieldValidator, err := validation.New(wctx.Settings, cfg.validators...)
	if err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}

	s := &Session{
		def:        def,
		ctx:        wctx,
		pages:      pages,
		resolver:   dependency.New(),
		validator:  fieldValidator,
		loaders:    make(map[string]*options.Loader),
		logger:     cfg.logger.With().Str("wizard", def.Name).Str("session", wctx.ID).Logger(),
		defaults:   defaults,
		values:     values,
		states:     make(map[string]model.FieldState),
		choices:    make(map[string][]model.Choice),
		changed:    make(map[string]struct{}),
		page:       0,
		generation: newGeneration(),
	}
	s.protocol = submission.New(def.Store,
		submission.WithMode(wctx.Mode),
		submission.WithCheck(s.checkAll),
		submission.WithPrepare(s.prepare),
		submission.WithMaxWarningCycles(cfg.maxCycles),
		submission.WithLogger(s.logger),
		submission.WithObserver(func(from, to submission.State) {
			s.logger.Debug().Stringer("from", from).Stringer("to", to).Msg("submission transition")
		}),
	)

	for _, field := range pages.Fields() {
		if len(field.Choices) > 0 {
			s.choices[field.Name] = append([]model.Choice(nil), field.Choices...)
		}
		if field.Remote != nil && field.Remote.Source != nil {
			s.loaders[field.Name] = options.NewLoader(field.Remote.Source, options.WithLogger(s.logger))
		}
	}

	if err := s.bootstrapChoices(ctx); err != nil {
		return nil, err
	}
	delta, err := s.resolver.Evaluate(wctx, pages, s.values)
	if err != nil {
		return nil, fmt.Errorf("wizard: evaluate fields: %w", err)
	}
	delta.Apply(s.values, s.states)
	s.logger.Info().Str("mode", string(wctx.Mode)).Msg("wizard opened")
	return s, nil
}

type loadResult struct {
	field  string
	result options.Result
}

// bootstrapChoices loads every remote choice set. Ungoverned sets load
// first so that governors selected from them key the governed loads. Only
// called from Open, before the session is shared.
func (s *Session) bootstrapChoices(ctx context.Context) error {
	var ungoverned, governed []model.Field
	for _, field := range s.pages.Fields() {
		if _, ok := s.loaders[field.Name]; !ok {
			continue
		}
		if field.Remote.Governor == "" {
			ungoverned = append(ungoverned, field)
		} else {
			governed = append(governed, field)
		}
	}
	for _, batch := range [][]model.Field{ungoverned, governed} {
		results, err := s.loadAll(ctx, batch, s.values.Clone())
		if err != nil {
			return fmt.Errorf("wizard: load choices: %w", err)
		}
		for _, res := range results {
			s.applyChoices(res)
		}
	}
	return nil
}

// loadAll loads the choices of fields concurrently against values.
func (s *Session) loadAll(ctx context.Context, fields []model.Field, values model.Values) ([]loadResult, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	results := make([]loadResult, len(fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range fields {
		g.Go(func() error {
			res, err := s.loadField(gctx, field, values)
			if err != nil {
				return err
			}
			results[i] = loadResult{field: field.Name, result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// loadField fetches the choices of field. Fields without a governor are
// loaded once with an empty key straight from their source.
func (s *Session) loadField(ctx context.Context, field model.Field, values model.Values) (options.Result, error) {
	if field.Remote.Governor == "" {
		choices, err := field.Remote.Source.Choices(ctx, "")
		if err != nil {
			return options.Result{}, fmt.Errorf("%s: %w", field.Name, err)
		}
		return options.Result{Choices: choices}, nil
	}
	governing := values.String(field.Remote.Governor)
	var prior any
	if s.ctx.Editing() {
		if field.Remote.Prior != nil {
			prior = field.Remote.Prior(s.ctx, governing)
		} else {
			prior = s.ctx.Loaded[field.Name]
		}
	}
	return s.loaders[field.Name].Load(ctx, governing, prior)
}

// applyChoices replaces a field's choice set and keeps its value consistent
// with it. The caller holds the lock or owns the session.
func (s *Session) applyChoices(res loadResult) bool {
	choices := res.result.Choices
	if choices == nil {
		choices = []model.Choice{}
	}
	s.choices[res.field] = choices

	before := s.values[res.field]
	switch {
	case res.result.Selected != nil:
		s.values[res.field] = res.result.Selected
	case !choiceValue(choices, before):
		s.values[res.field] = nil
	}
	field, _ := s.pages.Field(res.field)
	if isEmpty(s.values[res.field]) && field.Required && field.Kind == model.FieldKindChoice && len(choices) > 0 {
		s.values[res.field] = choices[0].ID
	}
	return !sameValue(before, s.values[res.field])
}

// Set stores value under name, recomputes the fields depending on it and
// reloads the choices it governs.
func (s *Session) Set(ctx context.Context, name string, value any) error {
	s.mu.Lock()
	if err := s.writable(); err != nil {
		s.mu.Unlock()
		return err
	}
	if _, ok := s.pages.Field(name); !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if state := s.states[name]; !state.Visible || !state.Enabled {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFieldDisabled, name)
	}

	s.values[name] = value
	s.changed[name] = struct{}{}
	if err := s.recompute([]string{name}); err != nil {
		s.mu.Unlock()
		return err
	}

	governed := s.governedBy(name)
	if len(governed) == 0 {
		s.mu.Unlock()
		return nil
	}
	gen := s.generation
	snapshot := s.values.Clone()
	s.busy = true
	s.mu.Unlock()

	results, loadErr := s.loadAll(ctx, governed, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		s.logger.Debug().Str("field", name).Msg("discarding choices for closed session")
		return ErrSessionClosed
	}
	s.busy = false
	if loadErr != nil {
		s.logger.Warn().Err(loadErr).Str("field", name).Msg("reloading choices failed")
		return fmt.Errorf("wizard: reload choices of %s dependents: %w", name, loadErr)
	}

	var touched []string
	for _, res := range results {
		if s.applyChoices(res) {
			s.changed[res.field] = struct{}{}
			touched = append(touched, res.field)
		}
	}
	if len(touched) > 0 {
		return s.recompute(touched)
	}
	return nil
}

func (s *Session) governedBy(name string) []model.Field {
	var out []model.Field
	for _, field := range s.pages.Fields() {
		if field.Remote != nil && field.Remote.Governor == name && s.loaders[field.Name] != nil {
			out = append(out, field)
		}
	}
	return out
}

func (s *Session) recompute(changed []string) error {
	delta, err := s.resolver.RecomputeAll(s.ctx, s.pages, s.values, changed)
	if err != nil {
		return fmt.Errorf("wizard: recompute: %w", err)
	}
	delta.Apply(s.values, s.states)
	return nil
}

// writable reports why the form cannot be edited right now.
func (s *Session) writable() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.busy {
		return ErrBusy
	}
	if s.protocol.State() == submission.StateAwaitingConfirmation {
		return fmt.Errorf("%w: a warning awaits confirmation", ErrInvalidTransition)
	}
	return nil
}

// Close ends the session. Results of outstanding operations are discarded.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.generation = ""
	s.logger.Info().Msg("wizard closed")
}

func newGeneration() string {
	return uuid.NewString()
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.ctx.ID
}

// Context returns the session context.
func (s *Session) Context() model.Context {
	return s.ctx
}

// Definition returns the wizard definition.
func (s *Session) Definition() Definition {
	return s.def
}

// Closed reports whether the session ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Busy reports whether a network operation is outstanding.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Values returns a copy of the current values.
func (s *Session) Values() model.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values.Clone()
}

// Defaults returns a copy of the values a fresh record starts from.
func (s *Session) Defaults() model.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.defaults.Clone()
}

// State returns the computed state of name.
func (s *Session) State(name string) (model.FieldState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[name]
	return state, ok
}

// States returns a copy of every field state.
func (s *Session) States() map[string]model.FieldState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.FieldState, len(s.states))
	for name, state := range s.states {
		out[name] = state
	}
	return out
}

// Choices returns the current choice set of name.
func (s *Session) Choices(name string) []model.Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Choice(nil), s.choices[name]...)
}

// Notes returns the informational notes collected so far.
func (s *Session) Notes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

// TakeNotes returns and clears the collected notes.
func (s *Session) TakeNotes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	notes := s.notes
	s.notes = nil
	return notes
}

// Pending returns the warning awaiting confirmation, if any.
func (s *Session) Pending() (string, bool) {
	return s.protocol.Pending()
}

// SubmissionState returns the state of the submission protocol.
func (s *Session) SubmissionState() submission.State {
	return s.protocol.State()
}

func (s *Session) changedFields() []string {
	out := make([]string, 0, len(s.changed))
	for name := range s.changed {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
