package plugin

import (
	"context"
	"strings"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// APIVersionPrefix is the host contract version prefix a plugin must target.
const APIVersionPrefix = "1."

// Descriptor identifies a plugin and carries its entry point.
type Descriptor struct {
	// ID is the globally unique plugin identifier. It also names the
	// plugin's translation namespace.
	ID string `json:"id"`

	// Name is the human-readable name.
	Name string `json:"name"`

	// Version is the plugin's own version.
	Version string `json:"version"`

	// APIVersion is the host contract version, e.g. "1.0".
	APIVersion string `json:"apiVersion"`

	// Capabilities are the contribution kinds the plugin claims.
	Capabilities []Capability `json:"capabilities"`

	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	Homepage    string `json:"homepage,omitempty"`

	// Translations maps a locale to the plugin's resource bundle.
	Translations map[string]i18n.Resources `json:"-"`

	// Setup is called once per load with the host context and a register callback.
	Setup SetupFunc `json:"-"`
}

// SetupFunc is a plugin entry point.
type SetupFunc func(args SetupArgs) error

// RegisterFunc merges an export bundle into the host registry.
// It may be called any number of times during setup.
type RegisterFunc func(exports Exports)

// SetupArgs is passed to a plugin's Setup.
type SetupArgs struct {
	// Context bounds the setup call. For external plugins it carries the
	// per-URL deadline.
	Context context.Context

	// Host is the host context for the session.
	Host *hostctx.Context

	// Register merges exports into the registry.
	Register RegisterFunc

	// Translate resolves keys from the plugin's own translation bundles.
	// May be nil when a plugin is set up by hand.
	Translate TranslateFunc
}

// TranslateFunc resolves key for locale from a plugin's bundles, falling
// back to the base locale and then to key itself. An empty locale means
// the base locale.
type TranslateFunc func(locale, key string) string

// T calls f, or returns key when f is nil.
func (f TranslateFunc) T(locale, key string) string {
	if f == nil {
		return key
	}
	return f(locale, key)
}

// Define returns d unchanged. It anchors the descriptor shape where a plugin
// is authored.
func Define(d Descriptor) Descriptor {
	return d
}

// Compatible reports whether the plugin targets this host contract.
func (d Descriptor) Compatible() bool {
	return strings.HasPrefix(d.APIVersion, APIVersionPrefix)
}

// Claimed returns the claimed capabilities as a set. Unknown names are ignored.
func (d Descriptor) Claimed() CapabilitySet {
	return NewCapabilitySet(d.Capabilities...)
}
