// Package tui drives a wizard session from the terminal: it prompts for the
// fields of the current page, navigates between pages and walks the user
// through warnings and the create-another loop.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/messages"
	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/widgets"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

// Session is the wizard surface the renderer drives. *wizard.Session
// implements it.
type Session interface {
	Context() model.Context
	Pages() model.Pages
	Page() model.Page
	PageIndex() int
	Last() bool
	State(name string) (model.FieldState, bool)
	Values() model.Values
	Choices(name string) []model.Choice
	Set(ctx context.Context, name string, value any) error
	Next() error
	Back() error
	Submit(ctx context.Context) (submission.Outcome, error)
	Confirm(ctx context.Context) (submission.Outcome, error)
	Abandon() error
	TakeNotes() []string
	Close()
	Closed() bool
}

// Summary reports what a run did.
type Summary struct {
	Created   int
	Updated   bool
	Cancelled bool
}

// Navigation labels offered after each page.
const (
	ActionNext   = "Next"
	ActionBack   = "Back"
	ActionFinish = "Finish"
	ActionCancel = "Cancel"
)

// Renderer runs wizard sessions in a terminal.
type Renderer struct {
	driver   PromptDriver
	out      io.Writer
	registry *widgets.Registry
	theme    Theme
	logger   zerolog.Logger
}

// New constructs a renderer with defaults (survey driver on stdout).
func New(options ...Option) *Renderer {
	r := &Renderer{
		out:      os.Stdout,
		registry: widgets.NewRegistry(),
		theme:    DefaultTheme,
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(r.out)
	}
	return r
}

// Name reports the renderer identifier.
func (r *Renderer) Name() string {
	return "tui"
}

// Run drives session until it closes, the user cancels or a prompt fails.
func (r *Renderer) Run(ctx context.Context, session Session) (Summary, error) {
	var summary Summary
	for !session.Closed() {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		page := session.Page()
		r.say(ctx, pageHeading(page))
		if err := r.promptPage(ctx, session, page); err != nil {
			return summary, err
		}

		action, err := r.chooseAction(ctx, session)
		if err != nil {
			return summary, err
		}
		switch action {
		case ActionCancel:
			session.Close()
			summary.Cancelled = true
			return summary, nil
		case ActionBack:
			err = session.Back()
		case ActionNext:
			err = session.Next()
		case ActionFinish:
			var done bool
			done, err = r.submit(ctx, session, &summary)
			if done {
				return summary, err
			}
		}
		if err != nil {
			if fatal := r.report(ctx, session, err); fatal != nil {
				return summary, fatal
			}
		}
	}
	return summary, nil
}

func (r *Renderer) promptPage(ctx context.Context, session Session, page model.Page) error {
	for _, field := range page.Fields {
		state, _ := session.State(field.Name)
		if !state.Visible {
			continue
		}
		current := session.Values()[field.Name]
		if !state.Enabled {
			r.say(ctx, fmt.Sprintf("%s: %s", displayLabel(field), formatScalar(current, session.Choices(field.Name))))
			continue
		}

		value, err := r.promptField(ctx, session, field, state, current)
		if errors.Is(err, ErrNoChoices) {
			r.say(ctx, r.theme.WarningPrefix+messages.Labelled(displayLabel(field), "no choices available"))
			continue
		}
		if err != nil {
			return err
		}
		if sameValue(value, current) {
			continue
		}
		if err := session.Set(ctx, field.Name, value); err != nil {
			if fatal := r.report(ctx, session, err); fatal != nil {
				return fatal
			}
		}
	}
	return nil
}

func (r *Renderer) promptField(ctx context.Context, session Session, field model.Field, state model.FieldState, current any) (any, error) {
	label := displayLabel(field)
	if state.Required {
		label += " *"
	}
	help := field.Metadata["help"]

	switch r.registry.Resolve(field) {
	case widgets.WidgetConfirm:
		def, _ := current.(bool)
		return r.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: def, Help: help})
	case widgets.WidgetSelect:
		choices := session.Choices(field.Name)
		if len(choices) == 0 {
			choices = field.Choices
		}
		if len(choices) == 0 {
			return current, ErrNoChoices
		}
		idx, err := r.driver.Select(ctx, SelectConfig{
			Message:      label,
			Options:      choiceLabels(choices),
			DefaultIndex: choiceIndex(choices, current),
			Help:         help,
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(choices) {
			return current, nil
		}
		return choices[idx].ID, nil
	case widgets.WidgetList:
		answer, err := r.driver.Input(ctx, InputConfig{
			Message: label,
			Default: formatList(current),
			Help:    listHelp(help),
		})
		if err != nil {
			return nil, err
		}
		return parseList(answer), nil
	case widgets.WidgetPassword:
		answer, err := r.driver.Password(ctx, InputConfig{Message: label, Help: help})
		if err != nil {
			return nil, err
		}
		if answer == "" {
			return current, nil
		}
		return answer, nil
	case widgets.WidgetDate:
		return r.driver.Input(ctx, InputConfig{
			Message:   label,
			Default:   formatScalar(current, nil),
			Help:      dateHelp(help),
			Validator: validDate,
		})
	default:
		return r.driver.Input(ctx, InputConfig{
			Message: label,
			Default: formatScalar(current, nil),
			Help:    help,
		})
	}
}

func (r *Renderer) chooseAction(ctx context.Context, session Session) (string, error) {
	actions := []string{ActionNext}
	if session.Last() {
		actions[0] = ActionFinish
	}
	if session.PageIndex() > 0 {
		actions = append(actions, ActionBack)
	}
	actions = append(actions, ActionCancel)

	idx, err := r.driver.Select(ctx, SelectConfig{
		Message:      "Continue",
		Options:      actions,
		DefaultIndex: 0,
	})
	if err != nil {
		return "", err
	}
	if idx < 0 || idx >= len(actions) {
		return actions[0], nil
	}
	return actions[idx], nil
}

// submit runs one submission including any warning confirmations. It
// reports true once the run is over.
func (r *Renderer) submit(ctx context.Context, session Session, summary *Summary) (bool, error) {
	editing := session.Context().Editing()

	outcome, err := session.Submit(ctx)
	for err == nil && outcome.Kind == submission.KindWarning {
		ok, cerr := r.driver.Confirm(ctx, ConfirmConfig{
			Message: r.theme.WarningPrefix + outcome.Message + " Continue anyway?",
		})
		if cerr != nil {
			return true, cerr
		}
		if !ok {
			return false, session.Abandon()
		}
		outcome, err = session.Confirm(ctx)
	}
	if err != nil {
		return false, err
	}

	switch outcome.Kind {
	case submission.KindError:
		r.logger.Debug().Err(outcome.Cause).Msg("submission failed")
		r.say(ctx, r.theme.ErrorPrefix+outcome.Message)
		return false, nil
	case submission.KindSuccess:
		r.flushNotes(ctx, session)
		if editing {
			summary.Updated = true
			r.say(ctx, r.theme.InfoPrefix+"The changes have been saved.")
			return true, nil
		}
		summary.Created++
		again, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Create another?", Default: true})
		if err != nil {
			return true, err
		}
		if !again {
			session.Close()
			return true, nil
		}
	}
	return false, nil
}

// report prints a recoverable error and returns the errors that end the run.
func (r *Renderer) report(ctx context.Context, session Session, err error) error {
	var verr *submission.ValidationError
	switch {
	case errors.As(err, &verr):
		pages := session.Pages()
		for _, name := range verr.Results.Failed() {
			label := name
			if field, ok := pages.Field(name); ok {
				label = displayLabel(field)
			}
			for _, message := range verr.Results[name].Messages {
				r.say(ctx, r.theme.ErrorPrefix+messages.Labelled(label, message))
			}
		}
		return nil
	case errors.Is(err, ErrAborted),
		errors.Is(err, wizard.ErrSessionClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		r.logger.Warn().Err(err).Msg("wizard operation failed")
		r.say(ctx, r.theme.ErrorPrefix+err.Error())
		return nil
	}
}

func (r *Renderer) flushNotes(ctx context.Context, session Session) {
	for _, note := range session.TakeNotes() {
		r.say(ctx, r.theme.InfoPrefix+note)
	}
}

func (r *Renderer) say(ctx context.Context, msg string) {
	if msg == "" {
		return
	}
	if err := r.driver.Info(ctx, msg); err != nil {
		r.logger.Debug().Err(err).Msg("printing message failed")
	}
}

func pageHeading(page model.Page) string {
	title := page.Title
	if title == "" {
		title = page.Name
	}
	if page.Help == "" {
		return title
	}
	return title + "\n" + page.Help
}

func displayLabel(field model.Field) string {
	if field.Label != "" {
		return field.Label
	}
	return field.Name
}
