package wizard

import (
	"context"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/validation"
)

// PageBuilder produces the base pages of a wizard.
type PageBuilder func(ctx model.Context) model.Pages

// Extension appends to or rewrites the pages produced so far. Extensions run
// in declaration order after the builder.
type Extension func(ctx model.Context, pages model.Pages) model.Pages

// FetchFunc loads the prior values of the record being edited.
type FetchFunc func(ctx context.Context, target string) (model.Values, error)

// NoteFunc renders the confirmation shown after a record was created.
type NoteFunc func(values model.Values) string

// Definition describes one kind of wizard.
type Definition struct {
	Name       string
	Title      string
	Build      PageBuilder
	Extensions []Extension

	Store  submission.Store
	Config remote.ConfigSource
	// ConfigKeys defaults to model.SettingsKeys.
	ConfigKeys []string
	Fetch      FetchFunc

	// Transforms run after the multi-value shape step, before every submit.
	Transforms []validation.Transform
	Note       NoteFunc
}

// Pages composes the builder with the extensions for ctx.
func (d Definition) Pages(ctx model.Context) model.Pages {
	var pages model.Pages
	if d.Build != nil {
		pages = d.Build(ctx)
	}
	for _, extend := range d.Extensions {
		if extend != nil {
			pages = extend(ctx, pages)
		}
	}
	return pages
}

func (d Definition) configKeys() []string {
	if len(d.ConfigKeys) > 0 {
		return d.ConfigKeys
	}
	return model.SettingsKeys
}
