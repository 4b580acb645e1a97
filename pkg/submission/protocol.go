// Package submission drives a single record submission through the
// error / warning-confirm / success protocol of the record store.
package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/messages"
	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

var (
	// ErrBusy is returned while a submission is in flight.
	ErrBusy = errors.New("submission: already submitting")
	// ErrInvalidTransition is returned when an operation does not apply to
	// the current state.
	ErrInvalidTransition = errors.New("submission: invalid transition")
	// ErrWarningLimit ends an attempt whose warnings exceeded the cycle cap.
	ErrWarningLimit = errors.New("submission: too many warnings")
	// ErrRepeatedWarning ends an attempt whose acknowledged warning came back
	// unchanged.
	ErrRepeatedWarning = errors.New("submission: warning repeated after acknowledgement")
)

const (
	// DefaultAckKey is the payload flag marking an acknowledged warning.
	DefaultAckKey = "ignore_warning"
	// DefaultMaxWarningCycles caps confirmations within one attempt.
	DefaultMaxWarningCycles = 3

	// GenericFailure is shown when the round-trip itself failed.
	GenericFailure = "The operation could not be completed. Please try again."
)

// State is a protocol state.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
	StateAwaitingConfirmation
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubmitting:
		return "submitting"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateAwaitingConfirmation:
		return "awaiting_confirmation"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind classifies an Outcome.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Outcome is the user-facing result of one round-trip.
type Outcome struct {
	Kind    Kind
	Message string
	Result  json.RawMessage
	// Cause carries the underlying error for transport failures and protocol
	// aborts.
	Cause error
}

// ValidationError reports local field failures. Submissions failing
// validation never reach the store.
type ValidationError struct {
	Results validation.Results
}

func (e *ValidationError) Error() string {
	return "submission: validation failed: " + strings.Join(e.Results.Failed(), ", ")
}

// Store is the record store used for submissions.
type Store interface {
	Add(ctx context.Context, values map[string]any) (remote.Response, error)
	Put(ctx context.Context, values map[string]any) (remote.Response, error)
}

// CheckFunc validates values before submission.
type CheckFunc func(values model.Values) validation.Results

// PrepareFunc turns validated values into the wire payload.
type PrepareFunc func(values model.Values) (model.Values, error)

// Observer is notified of every state transition.
type Observer func(from, to State)

// RetryState tracks the warning cycle of the current attempt.
type RetryState struct {
	Payload      model.Values
	Warning      string
	Cycles       int
	Acknowledged bool
}

// Protocol is the submission state machine of one wizard session.
type Protocol struct {
	mu        sync.Mutex
	store     Store
	mode      model.Mode
	check     CheckFunc
	prepare   PrepareFunc
	ackKey    string
	maxCycles int
	observer  Observer
	logger    zerolog.Logger

	state State
	retry RetryState
	last  Outcome
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithMode selects Add (create) or Put (edit).
func WithMode(mode model.Mode) Option {
	return func(p *Protocol) {
		p.mode = mode
	}
}

// WithCheck installs the validation step.
func WithCheck(check CheckFunc) Option {
	return func(p *Protocol) {
		p.check = check
	}
}

// WithPrepare installs the payload preparation step.
func WithPrepare(prepare PrepareFunc) Option {
	return func(p *Protocol) {
		p.prepare = prepare
	}
}

// WithAckKey overrides the acknowledgement flag name.
func WithAckKey(key string) Option {
	return func(p *Protocol) {
		if key != "" {
			p.ackKey = key
		}
	}
}

// WithMaxWarningCycles overrides the warning cap.
func WithMaxWarningCycles(n int) Option {
	return func(p *Protocol) {
		if n > 0 {
			p.maxCycles = n
		}
	}
}

// WithObserver installs a transition observer. It is called with the
// protocol lock held and must not call back into the Protocol.
func WithObserver(observer Observer) Option {
	return func(p *Protocol) {
		p.observer = observer
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Protocol) {
		p.logger = logger
	}
}

// New builds a Protocol over store.
func New(store Store, options ...Option) *Protocol {
	p := &Protocol{
		store:     store,
		mode:      model.ModeCreate,
		ackKey:    DefaultAckKey,
		maxCycles: DefaultMaxWarningCycles,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// State returns the current state.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Busy reports whether a round-trip is outstanding.
func (p *Protocol) Busy() bool {
	return p.State() == StateSubmitting
}

// Pending returns the warning awaiting confirmation, if any.
func (p *Protocol) Pending() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAwaitingConfirmation {
		return "", false
	}
	return p.retry.Warning, true
}

// Last returns the most recent outcome.
func (p *Protocol) Last() Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Submit validates values, prepares the payload and sends it to the store.
func (p *Protocol) Submit(ctx context.Context, values model.Values) (Outcome, error) {
	p.mu.Lock()
	switch p.state {
	case StateSubmitting:
		p.mu.Unlock()
		return Outcome{}, ErrBusy
	case StateAwaitingConfirmation, StateSucceeded:
		state := p.state
		p.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: submit while %s", ErrInvalidTransition, state)
	}

	if p.check != nil {
		if results := p.check(values); !results.Valid() {
			p.mu.Unlock()
			return Outcome{}, &ValidationError{Results: results}
		}
	}
	payload := values.Clone()
	if p.prepare != nil {
		prepared, err := p.prepare(payload)
		if err != nil {
			p.mu.Unlock()
			return Outcome{}, fmt.Errorf("submission: prepare: %w", err)
		}
		payload = prepared
	}
	if p.mode == model.ModeCreate {
		payload[p.ackKey] = false
	}

	p.retry = RetryState{Payload: payload}
	p.transition(StateSubmitting)
	p.mu.Unlock()

	return p.roundTrip(ctx, payload)
}

// Acknowledge resubmits the pending payload flagged as warning acknowledged.
func (p *Protocol) Acknowledge(ctx context.Context) (Outcome, error) {
	p.mu.Lock()
	if p.state != StateAwaitingConfirmation {
		state := p.state
		p.mu.Unlock()
		if state == StateSubmitting {
			return Outcome{}, ErrBusy
		}
		return Outcome{}, fmt.Errorf("%w: acknowledge while %s", ErrInvalidTransition, state)
	}
	payload := p.retry.Payload.Clone()
	payload[p.ackKey] = true
	p.retry.Acknowledged = true
	p.transition(StateSubmitting)
	p.mu.Unlock()

	return p.roundTrip(ctx, payload)
}

// Abandon drops the pending warning without contacting the store.
func (p *Protocol) Abandon() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != StateAwaitingConfirmation {
		return fmt.Errorf("%w: abandon while %s", ErrInvalidTransition, p.state)
	}
	p.retry = RetryState{}
	p.transition(StateIdle)
	return nil
}

// Reset returns a settled protocol to Idle.
func (p *Protocol) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == StateSubmitting {
		return ErrBusy
	}
	p.retry = RetryState{}
	p.last = Outcome{}
	if p.state != StateIdle {
		p.transition(StateIdle)
	}
	return nil
}

func (p *Protocol) roundTrip(ctx context.Context, payload model.Values) (Outcome, error) {
	var (
		resp remote.Response
		err  error
	)
	if p.mode == model.ModeEdit {
		resp, err = p.store.Put(ctx, map[string]any(payload))
	} else {
		resp, err = p.store.Add(ctx, map[string]any(payload))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.logger.Warn().Err(err).Str("mode", string(p.mode)).Msg("submission transport failed")
		return p.fail(Outcome{Kind: KindError, Message: GenericFailure, Cause: err}), nil
	}
	if resp.Error != "" {
		p.logger.Debug().Str("error", resp.Error).Msg("submission rejected")
		return p.fail(Outcome{Kind: KindError, Message: messages.Sanitize(resp.Error)}), nil
	}
	if resp.Warning != "" {
		return p.warn(messages.Sanitize(resp.Warning)), nil
	}

	p.retry = RetryState{}
	p.last = Outcome{Kind: KindSuccess, Result: resp.Result}
	p.transition(StateSucceeded)
	return p.last, nil
}

func (p *Protocol) warn(message string) Outcome {
	if p.retry.Acknowledged && message == p.retry.Warning {
		p.logger.Debug().Str("warning", message).Msg("acknowledged warning repeated")
		return p.fail(Outcome{Kind: KindError, Message: message, Cause: ErrRepeatedWarning})
	}
	if p.retry.Cycles >= p.maxCycles {
		return p.fail(Outcome{Kind: KindError, Message: message, Cause: ErrWarningLimit})
	}
	p.retry.Warning = message
	p.retry.Cycles++
	p.retry.Acknowledged = false
	p.last = Outcome{Kind: KindWarning, Message: message}
	p.transition(StateAwaitingConfirmation)
	return p.last
}

func (p *Protocol) fail(outcome Outcome) Outcome {
	p.retry = RetryState{}
	p.last = outcome
	p.transition(StateFailed)
	p.transition(StateIdle)
	return outcome
}

func (p *Protocol) transition(to State) {
	from := p.state
	p.state = to
	if p.observer != nil {
		p.observer(from, to)
	}
}
