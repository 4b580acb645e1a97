package wizard

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

// Pages returns the page set.
func (s *Session) Pages() model.Pages {
	return append(model.Pages(nil), s.pages...)
}

// Page returns the current page.
func (s *Session) Page() model.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pages[s.page]
}

// PageIndex returns the position of the current page.
func (s *Session) PageIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Last reports whether the current page is the final one.
func (s *Session) Last() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page == len(s.pages)-1
}

// Validate checks the current page without moving.
func (s *Session) Validate() validation.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validator.Validate(s.values, s.pages[s.page], s.states)
}

// Next validates the current page and moves forward.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if s.page >= len(s.pages)-1 {
		return fmt.Errorf("%w: already on the last page", ErrInvalidTransition)
	}
	if results := s.validator.Validate(s.values, s.pages[s.page], s.states); !results.Valid() {
		return &submission.ValidationError{Results: results}
	}
	if err := s.leavePage(); err != nil {
		return err
	}
	s.page++
	return nil
}

// Back moves to the previous page without validating.
func (s *Session) Back() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if s.page == 0 {
		return fmt.Errorf("%w: already on the first page", ErrInvalidTransition)
	}
	if err := s.leavePage(); err != nil {
		return err
	}
	s.page--
	return nil
}

// leavePage recomputes every dependent of every field changed since the
// page was entered.
func (s *Session) leavePage() error {
	changed := s.changedFields()
	if len(changed) > 0 {
		if err := s.recompute(changed); err != nil {
			return err
		}
	}
	clear(s.changed)
	return nil
}

// Submit sends the current values to the record store. It is only valid on
// the last page.
func (s *Session) Submit(ctx context.Context) (submission.Outcome, error) {
	s.mu.Lock()
	if err := s.writable(); err != nil {
		s.mu.Unlock()
		return submission.Outcome{}, err
	}
	if s.page != len(s.pages)-1 {
		s.mu.Unlock()
		return submission.Outcome{}, fmt.Errorf("%w: submit before the last page", ErrInvalidTransition)
	}
	if err := s.leavePage(); err != nil {
		s.mu.Unlock()
		return submission.Outcome{}, err
	}
	gen := s.generation
	s.submitted = s.values.Clone()
	s.submitStates = make(map[string]model.FieldState, len(s.states))
	for name, state := range s.states {
		s.submitStates[name] = state
	}
	snapshot := s.submitted.Clone()
	s.busy = true
	s.mu.Unlock()

	outcome, err := s.protocol.Submit(ctx, snapshot)
	return s.settle(gen, outcome, err)
}

// Confirm acknowledges the pending warning and resubmits.
func (s *Session) Confirm(ctx context.Context) (submission.Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return submission.Outcome{}, ErrSessionClosed
	}
	if s.busy {
		s.mu.Unlock()
		return submission.Outcome{}, ErrBusy
	}
	gen := s.generation
	s.busy = true
	s.mu.Unlock()

	outcome, err := s.protocol.Acknowledge(ctx)
	return s.settle(gen, outcome, err)
}

// Abandon drops the pending warning. No record is written.
func (s *Session) Abandon() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if err := s.protocol.Abandon(); err != nil {
		return err
	}
	s.logger.Info().Msg("submission abandoned after warning")
	return nil
}

func (s *Session) settle(gen string, outcome submission.Outcome, err error) (submission.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		s.logger.Debug().Msg("discarding submission result for closed session")
		return submission.Outcome{}, ErrSessionClosed
	}
	s.busy = false
	if err != nil {
		return outcome, err
	}

	switch outcome.Kind {
	case submission.KindSuccess:
		s.finish()
	case submission.KindWarning:
		s.logger.Info().Str("warning", outcome.Message).Msg("submission needs confirmation")
	case submission.KindError:
		s.logger.Warn().Err(outcome.Cause).Str("message", outcome.Message).Msg("submission failed")
	}
	return outcome, nil
}

// finish closes an edit session or restarts a create session.
func (s *Session) finish() {
	if s.ctx.Editing() {
		s.logger.Info().Str("target", s.ctx.Target).Msg("record updated")
		s.closed = true
		s.generation = ""
		return
	}
	if s.def.Note != nil {
		if note := s.def.Note(s.submitted); note != "" {
			s.notes = append(s.notes, note)
		}
	}
	s.logger.Info().Msg("record created")
	s.restart()
}

// restart resets values to the session defaults, keeping context-page and
// sticky fields, and returns to the first data-entry page.
func (s *Session) restart() {
	kept := model.Values{}
	for _, page := range s.pages {
		for _, field := range page.Fields {
			if page.Context || field.Sticky {
				kept[field.Name] = s.values[field.Name]
			}
		}
	}
	fresh := s.defaults.Clone()
	for key, value := range kept.Clone() {
		fresh[key] = value
	}

	s.values = fresh
	clear(s.changed)
	s.page = s.pages.FirstDataPage()
	s.submitted = nil
	s.submitStates = nil
	s.generation = newGeneration()

	if delta, err := s.resolver.Evaluate(s.ctx, s.pages, s.values); err != nil {
		s.logger.Error().Err(err).Msg("evaluating fields after restart failed")
	} else {
		delta.Apply(s.values, s.states)
	}
	if err := s.protocol.Reset(); err != nil {
		s.logger.Error().Err(err).Msg("resetting submission failed")
	}
}

// checkAll validates every page against the states captured by Submit. It
// runs on the submitting goroutine while the session is busy.
func (s *Session) checkAll(values model.Values) validation.Results {
	results := validation.Results{}
	for _, page := range s.pages {
		for name, result := range s.validator.Validate(values, page, s.submitStates) {
			results[name] = result
		}
	}
	return results
}

// prepare shapes values and applies the definition's transforms.
func (s *Session) prepare(values model.Values) (model.Values, error) {
	return validation.Prepare(s.ctx, values, s.pages, s.def.Transforms...)
}

func choiceValue(choices []model.Choice, value any) bool {
	if isEmpty(value) {
		return true
	}
	known := make(map[string]struct{}, len(choices))
	for _, choice := range choices {
		known[choice.ID] = struct{}{}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice {
		for i := 0; i < rv.Len(); i++ {
			if _, ok := known[fmt.Sprint(rv.Index(i).Interface())]; !ok {
				return false
			}
		}
		return true
	}
	_, ok := known[fmt.Sprint(value)]
	return ok
}

func isEmpty(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	}
	rv := reflect.ValueOf(value)
	return rv.Kind() == reflect.Slice && rv.Len() == 0
}

func sameValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
