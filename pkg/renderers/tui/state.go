package tui

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

// formatScalar renders a stored value as prompt default. Choice ids are shown
// by label when choices are supplied.
func formatScalar(value any, choices []model.Choice) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		for _, choice := range choices {
			if choice.ID == typed {
				return choiceLabel(choice)
			}
		}
		return typed
	case []any, []string:
		return formatList(typed)
	default:
		return fmt.Sprint(typed)
	}
}

// formatList joins a multi value for editing as comma separated text.
func formatList(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case []string:
		return strings.Join(typed, ", ")
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ", ")
	default:
		return fmt.Sprint(typed)
	}
}

// parseList splits comma or whitespace separated entries.
func parseList(answer string) []any {
	fields := strings.FieldsFunc(answer, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == ';'
	})
	out := make([]any, 0, len(fields))
	for _, field := range fields {
		out = append(out, field)
	}
	return out
}

func listHelp(help string) string {
	if help != "" {
		return help
	}
	return "Separate several entries with commas."
}

func dateHelp(help string) string {
	if help != "" {
		return help
	}
	return "Format: YYYY-MM-DD"
}

func validDate(answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil
	}
	if _, err := time.Parse(validation.DateLayout, answer); err != nil {
		return fmt.Errorf("expected a date like %s", validation.DateLayout)
	}
	return nil
}

func choiceLabel(choice model.Choice) string {
	if choice.Label != "" {
		return choice.Label
	}
	return choice.ID
}

func choiceLabels(choices []model.Choice) []string {
	out := make([]string, len(choices))
	for i, choice := range choices {
		out[i] = choiceLabel(choice)
	}
	return out
}

func choiceIndex(choices []model.Choice, value any) int {
	id := fmt.Sprint(value)
	for i, choice := range choices {
		if choice.ID == id {
			return i
		}
	}
	return -1
}

// sameValue treats every blank value (nil, "", empty list) as equal.
func sameValue(a, b any) bool {
	if blank(a) && blank(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func blank(value any) bool {
	switch typed := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(typed) == ""
	case []any:
		return len(typed) == 0
	case []string:
		return len(typed) == 0
	}
	return false
}
