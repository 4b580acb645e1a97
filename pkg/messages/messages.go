// Package messages turns backend error and warning text into terminal-safe
// strings and maps field-keyed error payloads onto wizard fields.
package messages

import (
	"html"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

var (
	policyOnce sync.Once
	policy     *bluemonday.Policy

	lineBreaks = regexp.MustCompile(`(?i)<\s*br\s*/?\s*>|</\s*(p|li|div)\s*>`)
)

func strict() *bluemonday.Policy {
	policyOnce.Do(func() {
		policy = bluemonday.StrictPolicy()
	})
	return policy
}

// Sanitize strips markup from a backend message. Line-breaking tags become
// newlines and entities are decoded.
func Sanitize(message string) string {
	if message == "" {
		return ""
	}
	message = lineBreaks.ReplaceAllString(message, "\n")
	clean := html.UnescapeString(strict().Sanitize(message))
	lines := strings.Split(clean, "\n")
	out := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

// Normalize trims messages and removes blanks and duplicates, preserving
// order. It returns nil when nothing remains.
func Normalize(messages []string) []string {
	if len(messages) == 0 {
		return nil
	}
	out := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		trimmed := strings.TrimSpace(message)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Merge concatenates message lists and normalises the result.
func Merge(existing []string, extras ...string) []string {
	combined := make([]string, 0, len(existing)+len(extras))
	combined = append(combined, existing...)
	combined = append(combined, extras...)
	return Normalize(combined)
}

// Labelled renders a field-scoped validation message as "Label: message.".
func Labelled(label, message string) string {
	message = strings.TrimSpace(message)
	message = strings.TrimSuffix(message, ".")
	if label == "" {
		return message + "."
	}
	return label + ": " + message + "."
}

// Mapping splits field-keyed messages into those attached to a known field
// and form-level leftovers.
type Mapping struct {
	Fields map[string][]string
	Form   []string
}

// MapFieldErrors resolves payload keys (plain names, dotted or JSON-pointer
// paths) against the fields of pages. Unknown keys become form-level so no
// message is dropped.
func MapFieldErrors(pages model.Pages, payload map[string][]string) Mapping {
	mapping := Mapping{Fields: make(map[string][]string)}
	if len(payload) == 0 {
		mapping.Fields = nil
		return mapping
	}

	known := make(map[string]struct{})
	for _, field := range pages.Fields() {
		known[field.Name] = struct{}{}
	}

	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		msgs := Normalize(sanitizeAll(payload[key]))
		if len(msgs) == 0 {
			continue
		}
		name := resolve(key, known)
		if name == "" {
			mapping.Form = append(mapping.Form, msgs...)
			continue
		}
		mapping.Fields[name] = append(mapping.Fields[name], msgs...)
	}

	if len(mapping.Fields) == 0 {
		mapping.Fields = nil
	}
	mapping.Form = Normalize(mapping.Form)
	return mapping
}

func sanitizeAll(messages []string) []string {
	out := make([]string, 0, len(messages))
	for _, message := range messages {
		out = append(out, Sanitize(message))
	}
	return out
}

// resolve returns the deepest path segment naming a known field.
func resolve(key string, known map[string]struct{}) string {
	trimmed := strings.TrimSpace(key)
	switch strings.ToLower(trimmed) {
	case "", "_", "#", "$", "form", "__all__", "non_field_errors":
		return ""
	}
	if _, ok := known[trimmed]; ok {
		return trimmed
	}
	trimmed = strings.NewReplacer("[", ".", "]", "", "~1", "/", "~0", "~").Replace(trimmed)
	segments := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == '.' || r == '/' || r == '#' || r == '$'
	})
	for i := len(segments) - 1; i >= 0; i-- {
		if _, ok := known[segments[i]]; ok {
			return segments[i]
		}
	}
	return ""
}
