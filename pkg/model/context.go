package model

import (
	"strconv"
	"strings"
)

// Mode distinguishes record creation from editing.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Configuration registry keys read once per session.
const (
	KeyExamUserPrefix        = "ucsschool/ldap/default/userprefix/exam"
	KeyCheckUsernameLength   = "ucsschool/ldap/check/username/lengthlimit"
	KeyMaxUsernameLength     = "ucsschool/username/max_length"
	KeyOptionalVisibleFields = "ucsschool/wizards/schoolwizards/users/optional_visible_fields"
)

// SettingsKeys lists every key ParseSettings understands.
var SettingsKeys = []string{
	KeyExamUserPrefix,
	KeyCheckUsernameLength,
	KeyMaxUsernameLength,
	KeyOptionalVisibleFields,
}

const (
	defaultExamUserPrefix    = "exam-"
	defaultMaxUsernameLength = 20
)

// Settings is the configuration cache of a wizard session.
type Settings struct {
	Raw                   map[string]string
	ExamUserPrefix        string
	CheckUsernameLength   bool
	MaxUsernameLength     int
	OptionalVisibleFields []string
}

// ParseSettings applies defaults and parses the raw configuration values.
func ParseSettings(raw map[string]string) Settings {
	settings := Settings{
		Raw:                 make(map[string]string, len(raw)),
		ExamUserPrefix:      defaultExamUserPrefix,
		CheckUsernameLength: true,
		MaxUsernameLength:   defaultMaxUsernameLength,
	}
	for key, value := range raw {
		settings.Raw[key] = value
	}

	if prefix := raw[KeyExamUserPrefix]; prefix != "" {
		settings.ExamUserPrefix = prefix
	}
	if flag := strings.TrimSpace(raw[KeyCheckUsernameLength]); flag != "" {
		settings.CheckUsernameLength = IsTrue(flag)
	}
	if limit, err := strconv.Atoi(strings.TrimSpace(raw[KeyMaxUsernameLength])); err == nil && limit > 0 {
		settings.MaxUsernameLength = limit
	}
	settings.OptionalVisibleFields = strings.Fields(raw[KeyOptionalVisibleFields])
	return settings
}

// UsernameBound is the maximum username length leaving room for the exam
// account prefix.
func (s Settings) UsernameBound() int {
	return s.MaxUsernameLength - len(s.ExamUserPrefix)
}

// OptionalVisible reports whether name is on the optional-field allow-list.
func (s Settings) OptionalVisible(name string) bool {
	for _, candidate := range s.OptionalVisibleFields {
		if candidate == name {
			return true
		}
	}
	return false
}

// IsTrue parses registry-style booleans (yes/true/1/enable/enabled/on).
func IsTrue(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "yes", "true", "1", "enable", "enabled", "on":
		return true
	default:
		return false
	}
}

// Context is the process-scoped state of one wizard session.
type Context struct {
	ID       string
	Mode     Mode
	Settings Settings
	// Loaded holds the record's prior values in edit mode.
	Loaded Values
	// Target identifies the edited record (its DN) in edit mode.
	Target string
}

// Editing reports whether the session edits an existing record.
func (c Context) Editing() bool {
	return c.Mode == ModeEdit
}
