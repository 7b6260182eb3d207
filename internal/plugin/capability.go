package plugin

import (
	"fmt"
	"strings"
)

// Capability names a kind of contribution a plugin may make to the host.
// The set is closed: plugins cannot introduce new capabilities.
type Capability string

// Host capabilities.
const (
	// CapabilityFeed allows registering a feed item renderer.
	CapabilityFeed Capability = "feed"

	// CapabilityComposer allows registering composer actions and attachment providers.
	CapabilityComposer Capability = "composer"

	// CapabilityItemActions allows registering per-item action providers.
	CapabilityItemActions Capability = "item-actions"

	// CapabilityRoutes allows registering routable views and navigation entries.
	CapabilityRoutes Capability = "routes"

	// CapabilityModals allows registering named modal dialogs.
	CapabilityModals Capability = "modals"
)

// allCapabilities lists every capability in bit order.
var allCapabilities = []Capability{
	CapabilityFeed,
	CapabilityComposer,
	CapabilityItemActions,
	CapabilityRoutes,
	CapabilityModals,
}

// AllCapabilities returns every capability the host understands.
func AllCapabilities() []Capability {
	out := make([]Capability, len(allCapabilities))
	copy(out, allCapabilities)
	return out
}

// Valid reports whether c is a known capability.
func (c Capability) Valid() bool {
	return c.bit() != 0
}

func (c Capability) bit() CapabilitySet {
	for i, known := range allCapabilities {
		if c == known {
			return 1 << i
		}
	}
	return 0
}

// ParseCapability converts a string into a Capability.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.TrimSpace(strings.ToLower(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, s)
	}
	return c, nil
}

// RiskLevel indicates how much of the host surface a capability exposes.
type RiskLevel int

const (
	// RiskLow indicates a passive, display-only contribution.
	RiskLow RiskLevel = iota

	// RiskMedium indicates a contribution that reacts to user input.
	RiskMedium

	// RiskHigh indicates a contribution that takes over host navigation.
	RiskHigh
)

// String returns a string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	default:
		return "unknown"
	}
}

// CapabilityInfo provides metadata about a capability.
type CapabilityInfo struct {
	Name        Capability
	DisplayName string
	Description string
	RiskLevel   RiskLevel
}

var capabilityInfo = map[Capability]CapabilityInfo{
	CapabilityFeed: {
		Name:        CapabilityFeed,
		DisplayName: "Feed renderer",
		Description: "Render feed items of a plugin-defined kind",
		RiskLevel:   RiskLow,
	},
	CapabilityComposer: {
		Name:        CapabilityComposer,
		DisplayName: "Composer",
		Description: "Add composer actions and attachment providers",
		RiskLevel:   RiskMedium,
	},
	CapabilityItemActions: {
		Name:        CapabilityItemActions,
		DisplayName: "Item actions",
		Description: "Offer actions on individual feed items",
		RiskLevel:   RiskMedium,
	},
	CapabilityRoutes: {
		Name:        CapabilityRoutes,
		DisplayName: "Routes",
		Description: "Register routable views and navigation menu entries",
		RiskLevel:   RiskHigh,
	},
	CapabilityModals: {
		Name:        CapabilityModals,
		DisplayName: "Modals",
		Description: "Register named modal dialogs",
		RiskLevel:   RiskMedium,
	},
}

// Info returns metadata about a capability.
func Info(c Capability) (CapabilityInfo, bool) {
	info, ok := capabilityInfo[c]
	return info, ok
}

// CapabilitySet is a set of capabilities.
// The zero value is the empty set.
type CapabilitySet uint8

// NewCapabilitySet builds a set from capabilities. Unknown values are ignored.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s |= c.bit()
	}
	return s
}

// ParseCapabilitySet builds a set from strings, rejecting unknown names.
func ParseCapabilitySet(names []string) (CapabilitySet, error) {
	var s CapabilitySet
	for _, name := range names {
		c, err := ParseCapability(name)
		if err != nil {
			return 0, err
		}
		s |= c.bit()
	}
	return s, nil
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	b := c.bit()
	return b != 0 && s&b != 0
}

// IsEmpty reports whether the set has no members.
func (s CapabilitySet) IsEmpty() bool {
	return s == 0
}

// Intersect returns the capabilities present in both sets.
func (s CapabilitySet) Intersect(other CapabilitySet) CapabilitySet {
	return s & other
}

// List returns the members in declaration order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(allCapabilities))
	for _, c := range allCapabilities {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// String returns a comma-separated list of members.
func (s CapabilitySet) String() string {
	list := s.List()
	names := make([]string, len(list))
	for i, c := range list {
		names[i] = string(c)
	}
	return strings.Join(names, ",")
}

// Allowed computes the effective capabilities for a plugin.
// An empty allow set permits everything the plugin claims.
func Allowed(claimed, allow CapabilitySet) CapabilitySet {
	if allow.IsEmpty() {
		return claimed
	}
	return claimed.Intersect(allow)
}
