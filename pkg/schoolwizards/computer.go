package schoolwizards

import (
	"fmt"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/options"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

// DefaultSubnetMask is preset on new computers.
const DefaultSubnetMask = "255.255.255.0"

// Computer returns the computer wizard.
func Computer(channel remote.Channel) wizard.Definition {
	return wizard.Definition{
		Name:  "computer",
		Title: "Create a new computer",
		Build: func(model.Context) model.Pages {
			return model.Pages{generalPage(channel, model.Field{
				Name:     "type",
				Label:    "Computer type",
				Kind:     model.FieldKindChoice,
				Required: true,
				Remote: &model.RemoteChoices{
					Source: options.CommandSource{Channel: channel, Command: CommandComputerTypes},
				},
			})}
		},
		Extensions: []wizard.Extension{computerItemPage},
		Store:      remote.NewRecordStore(channel, CommandComputers),
		Config:     remote.ChannelConfig{Channel: channel},
		Fetch:      fetcher(channel, CommandComputers),
		Transforms: []validation.Transform{injectTarget()},
		Note: func(values model.Values) string {
			return fmt.Sprintf("Computer %q has been successfully created. "+
				"Continue to create another computer or press \"Cancel\" to close this wizard.", values.String("name"))
		},
	}
}

func computerItemPage(ctx model.Context, pages model.Pages) model.Pages {
	help := "Enter details to create a new computer."
	if ctx.Editing() {
		help = "Enter details of the computer."
	}
	return append(pages, model.Page{
		Name:  "item",
		Title: "Create a new computer",
		Help:  help,
		Fields: []model.Field{
			{Name: "name", Label: "Name", Required: true, Disabled: ctx.Editing()},
			{Name: "ip_address", Label: "IP address", Kind: model.FieldKindMulti, Required: true, Rules: "ip"},
			{Name: "subnet_mask", Label: "Subnet mask", Default: DefaultSubnetMask, Rules: "ipv4"},
			{Name: "mac_address", Label: "MAC address", Kind: model.FieldKindMulti, Required: true, Rules: "mac"},
			{Name: "inventory_number", Label: "Inventory number"},
		},
	})
}
