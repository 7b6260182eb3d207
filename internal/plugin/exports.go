package plugin

import (
	"context"
	"fmt"
)

// Props are the inputs handed to a renderable.
type Props map[string]any

// Renderable produces markup for the downstream UI.
type Renderable interface {
	Render(ctx context.Context, props Props) (string, error)
}

// RenderFunc adapts a function to Renderable.
type RenderFunc func(ctx context.Context, props Props) (string, error)

// Render calls f.
func (f RenderFunc) Render(ctx context.Context, props Props) (string, error) {
	return f(ctx, props)
}

// SafeRender calls r and converts a panic into ErrRenderPanic.
func SafeRender(ctx context.Context, r Renderable, props Props) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrRenderPanic, rec)
		}
	}()
	return r.Render(ctx, props)
}

// FeedRenderer renders feed items of one kind.
type FeedRenderer struct {
	Kind     string
	Renderer Renderable
}

// ComposerAction is an action offered by the message composer.
type ComposerAction struct {
	ID    string
	Label string
	Icon  string

	// Run is invoked when the user triggers the action. It may be nil.
	Run func(ctx context.Context, input Props) error
}

// Item is a feed item as seen by item action providers.
type Item struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Data Props  `json:"data,omitempty"`
}

// ItemAction is an action available on a single item.
type ItemAction struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`

	Run func(ctx context.Context) error `json:"-"`
}

// ItemActionProvider returns the actions applicable to an item.
type ItemActionProvider func(item Item) []ItemAction

// Route is a routable view.
type Route struct {
	Path    string
	Element Renderable
}

// NavItem is a navigation menu entry.
type NavItem struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Icon  string `json:"icon,omitempty"`
	Path  string `json:"path"`
}

// AttachmentSpec describes an attachment type offered in the composer.
type AttachmentSpec struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Icon   string   `json:"icon,omitempty"`
	Accept []string `json:"accept,omitempty"`
}

// AttachmentFactory produces attachment specs. It is invoked once per merge.
type AttachmentFactory func() []AttachmentSpec

// Exports is the bundle a plugin hands to Register. Every field is optional.
type Exports struct {
	Feed        *FeedRenderer
	Composer    *ComposerAction
	ItemActions ItemActionProvider
	Routes      []Route
	Modals      map[string]Renderable
	Menu        []NavItem
	Attachments AttachmentFactory
}
