// Package validation runs the client-side checks of a wizard page and
// prepares values for submission.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

// Custom validator tags registered on every Validator.
const (
	TagUsernameLength = "username_length"
	TagDate           = "date"
)

// DateLayout is the accepted date format.
const DateLayout = "2006-01-02"

const usernameLengthMessage = "Microsoft Active Directory limits usernames to 20 characters. " +
	"To prevent logon problems with exam user accounts, usernames must not be longer than %d characters. " +
	"Please choose a shorter username."

var defaultMessages = map[string]string{
	"required": "This value is required.",
	"ip":       "Not a valid IP address.",
	"ipv4":     "Not a valid IPv4 address.",
	"mac":      "Not a valid MAC address.",
	"email":    "Not a valid e-mail address.",
	TagDate:    "Not a valid date (YYYY-MM-DD).",
}

// Result is the validation outcome of one field.
type Result struct {
	Field    string   `json:"field"`
	Valid    bool     `json:"valid"`
	Messages []string `json:"messages,omitempty"`
}

// Results maps field names to their outcome.
type Results map[string]Result

// Valid reports whether every result passed.
func (r Results) Valid() bool {
	for _, result := range r {
		if !result.Valid {
			return false
		}
	}
	return true
}

// Failed lists the failing field names in sorted order.
func (r Results) Failed() []string {
	var out []string
	for name, result := range r {
		if !result.Valid {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Messages flattens the failing messages keyed by field.
func (r Results) Messages() map[string][]string {
	out := make(map[string][]string)
	for name, result := range r {
		if !result.Valid {
			out[name] = append([]string(nil), result.Messages...)
		}
	}
	return out
}

// Validator checks field values against their declarations. Settings are
// captured at construction, so the username bound is fixed for its
// lifetime.
type Validator struct {
	settings model.Settings
	bound    int
	validate *validator.Validate
	messages map[string]string
	errs     []error
}

// Option configures a Validator.
type Option func(*Validator)

// WithMessage overrides the message used when tag fails.
func WithMessage(tag, message string) Option {
	return func(v *Validator) {
		v.messages[tag] = message
	}
}

// WithValidation registers an additional validator tag. Registration
// failures are returned by New.
func WithValidation(tag string, fn validator.Func) Option {
	return func(v *Validator) {
		v.register(tag, fn)
	}
}

// New builds a Validator for settings.
func New(settings model.Settings, options ...Option) (*Validator, error) {
	v := &Validator{
		settings: settings,
		bound:    settings.UsernameBound(),
		validate: validator.New(),
		messages: make(map[string]string, len(defaultMessages)+1),
	}
	for tag, message := range defaultMessages {
		v.messages[tag] = message
	}
	v.messages[TagUsernameLength] = fmt.Sprintf(usernameLengthMessage, v.bound)

	v.register(TagUsernameLength, func(fl validator.FieldLevel) bool {
		if !v.settings.CheckUsernameLength {
			return true
		}
		return utf8.RuneCountInString(fl.Field().String()) <= v.bound
	})
	v.register(TagDate, func(fl validator.FieldLevel) bool {
		_, err := time.Parse(DateLayout, strings.TrimSpace(fl.Field().String()))
		return err == nil
	})

	for _, opt := range options {
		if opt != nil {
			opt(v)
		}
	}
	if err := errors.Join(v.errs...); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Validator) register(tag string, fn validator.Func) {
	if err := v.validate.RegisterValidation(tag, fn); err != nil {
		v.errs = append(v.errs, fmt.Errorf("validation: register %q: %w", tag, err))
	}
}

// UsernameBound returns the effective username length bound.
func (v *Validator) UsernameBound() int {
	return v.bound
}

// Validate checks the fields of page. Only fields that are visible and
// enabled in states are validated; a nil states map falls back to the static
// declarations.
func (v *Validator) Validate(values model.Values, page model.Page, states map[string]model.FieldState) Results {
	results := make(Results)
	for _, field := range page.Fields {
		state, ok := states[field.Name]
		if !ok {
			state = model.FieldState{
				Visible:  !field.Optional,
				Required: field.Required,
				Enabled:  !field.Disabled,
			}
		}
		if !state.Visible || !state.Enabled {
			continue
		}
		results[field.Name] = v.Field(field, state, values[field.Name])
	}
	return results
}

// Field validates a single value.
func (v *Validator) Field(field model.Field, state model.FieldState, value any) Result {
	result := Result{Field: field.Name, Valid: true}
	fail := func(message string) {
		result.Valid = false
		result.Messages = append(result.Messages, message)
	}

	items := elements(value)
	if len(items) == 0 {
		if state.Required && field.Kind != model.FieldKindBoolean {
			fail(v.messages["required"])
		}
		return result
	}

	for _, item := range items {
		if field.MaxLength > 0 && utf8.RuneCountInString(item) > field.MaxLength {
			fail(fmt.Sprintf("Must not exceed %d characters.", field.MaxLength))
		}
		if tag := v.tags(field); tag != "" {
			if err := v.validate.Var(item, tag); err != nil {
				fail(v.message(field, err))
			}
		}
	}
	result.Messages = dedupe(result.Messages)
	return result
}

func (v *Validator) tags(field model.Field) string {
	tags := strings.TrimSpace(field.Rules)
	if field.Kind == model.FieldKindDate && !strings.Contains(tags, TagDate) {
		if tags == "" {
			tags = TagDate
		} else {
			tags += "," + TagDate
		}
	}
	return tags
}

func (v *Validator) message(field model.Field, err error) string {
	if field.Message != "" {
		return field.Message
	}
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		if message, ok := v.messages[errs[0].Tag()]; ok {
			return message
		}
		return fmt.Sprintf("Failed the %s check.", errs[0].Tag())
	}
	return err.Error()
}

// elements returns the non-empty string forms of value.
func elements(value any) []string {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		out := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, elements(rv.Index(i).Interface())...)
		}
		return out
	}
	switch typed := value.(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{strings.TrimSpace(typed)}
	case bool:
		if !typed {
			return nil
		}
		return []string{"true"}
	default:
		return []string{fmt.Sprint(typed)}
	}
}

func dedupe(messages []string) []string {
	if len(messages) < 2 {
		return messages
	}
	seen := make(map[string]struct{}, len(messages))
	out := messages[:0]
	for _, message := range messages {
		if _, ok := seen[message]; ok {
			continue
		}
		seen[message] = struct{}{}
		out = append(out, message)
	}
	return out
}
