package plugin

import (
	"errors"
	"fmt"
)

// Kind names one of the registries.
type Kind string

// Registry kinds.
const (
	KindFeed        Kind = "feed"
	KindComposer    Kind = "composer"
	KindItemActions Kind = "item-actions"
	KindRoutes      Kind = "routes"
	KindModals      Kind = "modals"
	KindMenu        Kind = "menu"
	KindAttachments Kind = "attachments"
)

// Kinds returns every registry kind in merge order.
func Kinds() []Kind {
	return []Kind{KindFeed, KindComposer, KindItemActions, KindRoutes, KindModals, KindMenu, KindAttachments}
}

// Counts maps a registry kind to a number of entries.
type Counts map[Kind]int

// Total returns the sum over all kinds.
func (c Counts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

func (c Counts) add(other Counts) {
	for k, v := range other {
		c[k] += v
	}
}

// MergeResult summarizes what a merge kept and what it dropped.
// Nothing in it is fatal.
type MergeResult struct {
	// Accepted counts entries written to the registry.
	Accepted Counts `json:"accepted"`

	// Denied counts entries dropped because the capability was not
	// claimed or not allowed.
	Denied Counts `json:"denied"`

	// Duplicates counts entries dropped by a first-wins key collision.
	Duplicates Counts `json:"duplicates"`

	// Err holds a recovered attachment factory failure.
	Err error `json:"-"`
}

func newMergeResult() MergeResult {
	return MergeResult{
		Accepted:   Counts{},
		Denied:     Counts{},
		Duplicates: Counts{},
	}
}

// Add folds other into r.
func (r *MergeResult) Add(other MergeResult) {
	if r.Accepted == nil {
		*r = newMergeResult()
	}
	r.Accepted.add(other.Accepted)
	r.Denied.add(other.Denied)
	r.Duplicates.add(other.Duplicates)
	if other.Err != nil {
		r.Err = errors.Join(r.Err, other.Err)
	}
}

// uniqueByKeyFirstWins appends the incoming values whose key is not already
// present, in incoming order. An incoming key repeated within the same batch
// is also dropped after its first occurrence.
func uniqueByKeyFirstWins[T any](existing []Entry[T], pluginID string, incoming []T, key func(T) string) (merged []Entry[T], accepted, dropped int) {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, e := range existing {
		seen[key(e.Value)] = struct{}{}
	}
	merged = existing
	for _, v := range incoming {
		k := key(v)
		if _, dup := seen[k]; dup {
			dropped++
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, Entry[T]{PluginID: pluginID, Value: v})
		accepted++
	}
	return merged, accepted, dropped
}

// mergeByKeyLastWins writes every incoming entry into existing, replacing
// entries with the same key.
func mergeByKeyLastWins[T any](existing map[string]Entry[T], pluginID string, incoming map[string]T) int {
	for k, v := range incoming {
		existing[k] = Entry[T]{PluginID: pluginID, Value: v}
	}
	return len(incoming)
}

func collectAttachments(factory AttachmentFactory) (specs []AttachmentSpec, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			specs = nil
			err = fmt.Errorf("attachment factory panicked: %v", rec)
		}
	}()
	return factory(), nil
}

// Merge folds one export bundle into the registry. Each kind is gated by the
// effective capabilities, Allowed(claimed, allow), and merged independently;
// there is no rollback.
func (r *Registry) Merge(pluginID string, claimed, allow CapabilitySet, ex Exports) MergeResult {
	allowed := Allowed(claimed, allow)
	res := newMergeResult()

	// Plugin code runs outside the lock.
	var attachments []AttachmentSpec
	if ex.Attachments != nil {
		if allowed.Has(CapabilityComposer) {
			attachments, res.Err = collectAttachments(ex.Attachments)
		} else {
			res.Denied[KindAttachments]++
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if ex.Feed != nil {
		if allowed.Has(CapabilityFeed) {
			r.feeds = append(r.feeds, Entry[FeedRenderer]{PluginID: pluginID, Value: *ex.Feed})
			res.Accepted[KindFeed]++
		} else {
			res.Denied[KindFeed]++
		}
	}

	if ex.Composer != nil {
		if allowed.Has(CapabilityComposer) {
			r.composer = append(r.composer, Entry[ComposerAction]{PluginID: pluginID, Value: *ex.Composer})
			res.Accepted[KindComposer]++
		} else {
			res.Denied[KindComposer]++
		}
	}

	if ex.ItemActions != nil {
		if allowed.Has(CapabilityItemActions) {
			r.itemActions = append(r.itemActions, Entry[ItemActionProvider]{PluginID: pluginID, Value: ex.ItemActions})
			res.Accepted[KindItemActions]++
		} else {
			res.Denied[KindItemActions]++
		}
	}

	if len(ex.Routes) > 0 {
		if allowed.Has(CapabilityRoutes) {
			var acc, dup int
			r.routes, acc, dup = uniqueByKeyFirstWins(r.routes, pluginID, ex.Routes, func(rt Route) string { return rt.Path })
			res.Accepted[KindRoutes] += acc
			res.Duplicates[KindRoutes] += dup
		} else {
			res.Denied[KindRoutes] += len(ex.Routes)
		}
	}

	if len(ex.Modals) > 0 {
		if allowed.Has(CapabilityModals) {
			res.Accepted[KindModals] += mergeByKeyLastWins(r.modals, pluginID, ex.Modals)
		} else {
			res.Denied[KindModals] += len(ex.Modals)
		}
	}

	// Menu entries ride on the routes capability.
	if len(ex.Menu) > 0 {
		if allowed.Has(CapabilityRoutes) {
			var acc, dup int
			r.menu, acc, dup = uniqueByKeyFirstWins(r.menu, pluginID, ex.Menu, func(n NavItem) string { return n.ID })
			res.Accepted[KindMenu] += acc
			res.Duplicates[KindMenu] += dup
		} else {
			res.Denied[KindMenu] += len(ex.Menu)
		}
	}

	for _, spec := range attachments {
		r.attachments = append(r.attachments, Entry[AttachmentSpec]{PluginID: pluginID, Value: spec})
		res.Accepted[KindAttachments]++
	}

	return res
}
