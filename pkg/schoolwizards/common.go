// Package schoolwizards defines the computer and user wizards of the school
// directory on top of the generic wizard engine.
package schoolwizards

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/options"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

// Remote commands used by the wizards.
const (
	CommandSchools       = "schoolwizards/schools"
	CommandClasses       = "schoolwizards/classes"
	CommandComputers     = "schoolwizards/computers"
	CommandComputerTypes = "schoolwizards/computers/types"
	CommandUsers         = "schoolwizards/users"
)

// DNKey carries the distinguished name of an edited record.
const DNKey = "$dn$"

// generalPage is the context page shared by every wizard: the school and a
// type selector supplied by the concrete wizard.
func generalPage(channel remote.Channel, kind model.Field) model.Page {
	return model.Page{
		Name:    "general",
		Title:   "General",
		Help:    "Select the school and the type of the new object.",
		Context: true,
		Fields: []model.Field{
			{
				Name:     "school",
				Label:    "School",
				Kind:     model.FieldKindChoice,
				Required: true,
				Remote: &model.RemoteChoices{
					Source: options.CommandSource{Channel: channel, Command: CommandSchools},
				},
			},
			kind,
		},
	}
}

// fetcher loads a record through "<prefix>/get".
func fetcher(channel remote.Channel, prefix string) func(ctx context.Context, target string) (model.Values, error) {
	return func(ctx context.Context, target string) (model.Values, error) {
		resp, err := channel.Invoke(ctx, prefix+"/get", map[string]any{DNKey: target})
		if err != nil {
			return nil, err
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("schoolwizards: %s", resp.Error)
		}
		values := model.Values{}
		if err := resp.Decode(&values); err != nil {
			return nil, fmt.Errorf("schoolwizards: decode record: %w", err)
		}
		return values, nil
	}
}

// injectTarget adds the DN and school of an edited record to the payload.
func injectTarget() validation.Transform {
	return validation.TransformFunc(func(ctx model.Context, values model.Values) (model.Values, error) {
		if !ctx.Editing() {
			return values, nil
		}
		values[DNKey] = ctx.Target
		if school := ctx.Loaded.String("school"); school != "" && values.String("school") == "" {
			values["school"] = school
		}
		return values, nil
	})
}

// FirstRDNValue returns the value of the first relative distinguished name of
// dn, e.g. "demo-1a" for "cn=demo-1a,cn=klassen,ou=demo". Escaped characters
// are unescaped. Values that are not DNs are returned unchanged.
func FirstRDNValue(dn string) string {
	var (
		value   strings.Builder
		inValue bool
		escaped bool
	)
	for i := 0; i < len(dn); i++ {
		ch := dn[i]
		switch {
		case escaped:
			value.WriteByte(ch)
			escaped = false
		case ch == '\\':
			escaped = true
		case ch == '=' && !inValue:
			inValue = true
		case ch == ',' || ch == '+':
			if !inValue {
				return dn
			}
			return strings.TrimSpace(value.String())
		case inValue:
			value.WriteByte(ch)
		}
	}
	if !inValue {
		return dn
	}
	return strings.TrimSpace(value.String())
}
