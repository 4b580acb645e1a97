package model

import (
	"context"
	"strings"
)

// FieldKind enumerates the value shapes a wizard field can hold.
type FieldKind string

const (
	FieldKindScalar   FieldKind = "scalar"
	FieldKindMulti    FieldKind = "multi"
	FieldKindBoolean  FieldKind = "boolean"
	FieldKindDate     FieldKind = "date"
	FieldKindPassword FieldKind = "password"
	FieldKindChoice   FieldKind = "choice"
)

// Choice is a single selectable option for choice fields.
type Choice struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ChoiceSource loads the dynamic value set of a field keyed by the value of
// its governing field.
type ChoiceSource interface {
	Choices(ctx context.Context, governing string) ([]Choice, error)
}

// RemoteChoices binds a field to a ChoiceSource. Governor names the field
// whose value keys the lookup.
type RemoteChoices struct {
	Governor string
	Source   ChoiceSource

	// Prior returns the edited record's value for the given governing
	// value. Nil uses the loaded value of the field itself.
	Prior func(ctx Context, governing string) any
}

// Field describes an individual input on a wizard page.
type Field struct {
	Name      string    `json:"name"`
	Label     string    `json:"label,omitempty"`
	Kind      FieldKind `json:"kind"`
	Required  bool      `json:"required"`
	Disabled  bool      `json:"disabled,omitempty"`
	MaxLength int       `json:"maxLength,omitempty"`
	Default   any       `json:"default,omitempty"`

	// DependsOn lists the fields whose changes require this field's state to
	// be recomputed.
	DependsOn []string `json:"dependsOn,omitempty"`

	// Rule expressions, see pkg/visibility/expr. Empty rules evaluate to true
	// for VisibleWhen/EnabledWhen and are ignored for RequiredWhen.
	VisibleWhen  string `json:"visibleWhen,omitempty"`
	RequiredWhen string `json:"requiredWhen,omitempty"`
	EnabledWhen  string `json:"enabledWhen,omitempty"`

	// Optional fields are only visible when listed in the session's
	// optional-field allow-list.
	Optional bool `json:"optional,omitempty"`

	// Sticky fields keep their value across the create-another loop.
	Sticky bool `json:"sticky,omitempty"`

	// Rules holds validator tags (go-playground/validator syntax).
	Rules string `json:"rules,omitempty"`

	// Message overrides the validation message shown when Rules fail.
	Message string `json:"message,omitempty"`

	Choices []Choice       `json:"choices,omitempty"`
	Remote  *RemoteChoices `json:"-"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// IsMulti reports whether the field holds an ordered sequence of values.
func (f Field) IsMulti() bool {
	return f.Kind == FieldKindMulti
}

// DependsOnField reports whether name is listed in DependsOn.
func (f Field) DependsOnField(name string) bool {
	for _, dep := range f.DependsOn {
		if strings.TrimSpace(dep) == name {
			return true
		}
	}
	return false
}

// Button is a navigation or action hint attached to a page.
type Button struct {
	Name   string `json:"name"`
	Label  string `json:"label,omitempty"`
	Target string `json:"target,omitempty"`
}

// Page is an ordered page descriptor. Context pages (such as the general page
// holding the selected school and role) are preserved by the create-another
// loop; all other pages are data-entry pages.
type Page struct {
	Name    string   `json:"name"`
	Title   string   `json:"title,omitempty"`
	Help    string   `json:"help,omitempty"`
	Context bool     `json:"context,omitempty"`
	Fields  []Field  `json:"fields"`
	Buttons []Button `json:"buttons,omitempty"`
}

// Field looks up a field by name.
func (p Page) Field(name string) (Field, bool) {
	for _, field := range p.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Has reports whether the page declares name.
func (p Page) Has(name string) bool {
	_, ok := p.Field(name)
	return ok
}

// Pages is an ordered page set.
type Pages []Page

// Field finds a field across all pages.
func (ps Pages) Field(name string) (Field, bool) {
	for _, page := range ps {
		if field, ok := page.Field(name); ok {
			return field, true
		}
	}
	return Field{}, false
}

// Fields flattens the page set in page order.
func (ps Pages) Fields() []Field {
	var out []Field
	for _, page := range ps {
		out = append(out, page.Fields...)
	}
	return out
}

// Index returns the position of the named page or -1.
func (ps Pages) Index(name string) int {
	for i, page := range ps {
		if page.Name == name {
			return i
		}
	}
	return -1
}

// FirstDataPage returns the index of the first non-context page, falling back
// to the first page.
func (ps Pages) FirstDataPage() int {
	for i, page := range ps {
		if !page.Context {
			return i
		}
	}
	return 0
}

// FieldState is the computed presentation state of a field.
type FieldState struct {
	Visible  bool `json:"visible"`
	Required bool `json:"required"`
	Enabled  bool `json:"enabled"`
}
