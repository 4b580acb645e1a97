package schoolwizards

import (
	"context"
	"fmt"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/options"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

// RoleStudent is the only role that carries a school class.
const RoleStudent = "student"

// Roles lists the selectable user roles.
var Roles = []model.Choice{
	{ID: RoleStudent, Label: "Student"},
	{ID: "teacher", Label: "Teacher"},
	{ID: "staff", Label: "Staff"},
	{ID: "teacher_and_staff", Label: "Teacher and Staff"},
}

// OptionalUserFields are hidden unless listed in the optional-field
// allow-list.
var OptionalUserFields = []string{"schools", "ucsschool_roles", "birthday", "disabled", "password", "email", "expiration_date"}

const studentRule = `type == "student"`

// loadedClassesKey keeps the edited user's full class map in the loaded
// values while the school_classes field holds the selected class only.
const loadedClassesKey = "$school_classes$"

// User returns the user wizard.
func User(channel remote.Channel) wizard.Definition {
	classes := options.CommandSource{
		Channel: channel,
		Command: CommandClasses,
		Param:   "school",
		MapID:   FirstRDNValue,
	}
	return wizard.Definition{
		Name:  "user",
		Title: "Create a new user",
		Build: func(model.Context) model.Pages {
			return model.Pages{generalPage(channel, model.Field{
				Name:     "type",
				Label:    "Role",
				Kind:     model.FieldKindChoice,
				Required: true,
				Default:  RoleStudent,
				Choices:  Roles,
			})}
		},
		Extensions: []wizard.Extension{userItemPage(classes)},
		Store:      remote.NewRecordStore(channel, CommandUsers),
		Config:     remote.ChannelConfig{Channel: channel},
		Fetch:      userFetcher(channel),
		Transforms: []validation.Transform{
			validation.TransformFunc(schoolClasses),
			validation.TransformFunc(userSchools),
			validation.TransformFunc(emptyPassword),
			injectTarget(),
		},
		Note: func(values model.Values) string {
			return fmt.Sprintf("User %q has been successfully created. "+
				"Continue to create another user or press \"Cancel\" to close this wizard.", values.String("name"))
		},
	}
}

func userFetcher(channel remote.Channel) wizard.FetchFunc {
	fetch := fetcher(channel, CommandUsers)
	return func(ctx context.Context, target string) (model.Values, error) {
		values, err := fetch(ctx, target)
		if err != nil {
			return nil, err
		}
		classes, _ := values["school_classes"].(map[string]any)
		values[loadedClassesKey] = classes
		values["school_classes"] = firstClass(classes, values.String("school"))
		return values, nil
	}
}

// loadedClass is the edited user's class in school, nil when the user had
// none there.
func loadedClass(ctx model.Context, school string) any {
	classes, _ := ctx.Loaded[loadedClassesKey].(map[string]any)
	return firstClass(classes, school)
}

func firstClass(classes map[string]any, school string) any {
	switch list := classes[school].(type) {
	case []any:
		if len(list) > 0 {
			return list[0]
		}
	case []string:
		if len(list) > 0 {
			return list[0]
		}
	}
	return nil
}

func userItemPage(classes model.ChoiceSource) wizard.Extension {
	return func(ctx model.Context, pages model.Pages) model.Pages {
		help := "Enter details to create a new user"
		if ctx.Editing() {
			help = "Enter details of the user"
		}
		optional := func(field model.Field) model.Field {
			field.Optional = true
			return field
		}
		return append(pages, model.Page{
			Name:  "item",
			Title: "Create a new user",
			Help:  help,
			Fields: []model.Field{
				{Name: "firstname", Label: "Firstname", Required: true},
				{Name: "lastname", Label: "Lastname", Required: true},
				{Name: "name", Label: "Username", Required: true, Disabled: ctx.Editing(), Rules: "username_length"},
				optional(model.Field{Name: "disabled", Label: "Disabled", Kind: model.FieldKindBoolean, Default: false}),
				optional(model.Field{Name: "birthday", Label: "Birthday", Kind: model.FieldKindDate}),
				{
					Name:         "school_classes",
					Label:        "Class",
					Kind:         model.FieldKindChoice,
					DependsOn:    []string{"type", "school"},
					VisibleWhen:  studentRule,
					RequiredWhen: studentRule,
					Sticky:       true,
					Remote:       &model.RemoteChoices{Governor: "school", Source: classes, Prior: loadedClass},
				},
				optional(model.Field{Name: "email", Label: "E-Mail", Rules: "email"}),
				optional(model.Field{Name: "expiration_date", Label: "Expiration date", Kind: model.FieldKindDate}),
				optional(model.Field{Name: "password", Label: "Password", Kind: model.FieldKindPassword}),
				optional(model.Field{Name: "schools", Label: "Schools", Kind: model.FieldKindMulti, Disabled: true}),
				optional(model.Field{Name: "ucsschool_roles", Label: "UCS@school roles", Kind: model.FieldKindMulti, Disabled: true, Default: []any{}}),
			},
			Buttons: []model.Button{{Name: "newClass", Label: "Create a new class", Target: CommandClasses}},
		})
	}
}

// schoolClasses turns the selected class into the per-school class map,
// merged over the classes the edited user already had. Non-students send no
// class map.
func schoolClasses(ctx model.Context, values model.Values) (model.Values, error) {
	if values.String("type") != RoleStudent {
		delete(values, "school_classes")
		return values, nil
	}
	selected := values.String("school_classes")
	school := values.String("school")

	merged := map[string]any{}
	if loaded, ok := ctx.Loaded[loadedClassesKey].(map[string]any); ok {
		for key, value := range model.Values(loaded).Clone() {
			merged[key] = value
		}
	}
	list, _ := merged[school].([]any)
	list = append([]any(nil), list...)
	if len(list) == 0 {
		list = []any{nil}
	}
	list[0] = selected
	merged[school] = list
	values["school_classes"] = merged
	return values, nil
}

// userSchools defaults the schools list to the selected school.
func userSchools(_ model.Context, values model.Values) (model.Values, error) {
	if schools, ok := values["schools"].([]any); ok && len(schools) > 0 {
		return values, nil
	}
	if school := values.String("school"); school != "" {
		values["schools"] = []any{school}
	}
	return values, nil
}

// emptyPassword sends an unset password as null.
func emptyPassword(_ model.Context, values model.Values) (model.Values, error) {
	if values.String("password") == "" {
		values["password"] = nil
	}
	return values, nil
}
