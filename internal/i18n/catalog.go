// Package i18n holds translated resource bundles contributed by plugins.
//
// Bundles are addressed by locale and namespace. The plugin host uses the
// plugin ID as namespace and registers each plugin's bundle at most once.
package i18n

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/text/language"
)

// Errors returned by the catalog.
var (
	// ErrInvalidLocale is returned when a locale is not a valid BCP 47 tag.
	ErrInvalidLocale = errors.New("i18n: invalid locale")

	// ErrEmptyNamespace is returned when a bundle has no namespace.
	ErrEmptyNamespace = errors.New("i18n: namespace is required")
)

// Resources maps message keys to translated text.
type Resources map[string]string

// Catalog stores resource bundles by locale and namespace.
// It is safe for concurrent use.
type Catalog struct {
	mu      sync.RWMutex
	base    language.Tag
	bundles map[language.Tag]map[string]Resources
}

// NewCatalog creates a catalog whose fallback locale is base.
func NewCatalog(base string) (*Catalog, error) {
	tag, err := parse(base)
	if err != nil {
		return nil, err
	}
	return &Catalog{
		base:    tag,
		bundles: make(map[language.Tag]map[string]Resources),
	}, nil
}

// BaseLocale returns the canonical fallback locale.
func (c *Catalog) BaseLocale() string {
	return c.base.String()
}

// AddResourceBundle merges resources into the bundle at (locale, namespace).
// Existing keys are overwritten.
func (c *Catalog) AddResourceBundle(locale, namespace string, resources Resources) error {
	if namespace == "" {
		return ErrEmptyNamespace
	}
	tag, err := parse(locale)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	byNS, ok := c.bundles[tag]
	if !ok {
		byNS = make(map[string]Resources)
		c.bundles[tag] = byNS
	}
	bundle, ok := byNS[namespace]
	if !ok {
		bundle = make(Resources, len(resources))
		byNS[namespace] = bundle
	}
	for k, v := range resources {
		bundle[k] = v
	}
	return nil
}

// HasResourceBundle reports whether a bundle exists at (locale, namespace).
func (c *Catalog) HasResourceBundle(locale, namespace string) bool {
	tag, err := parse(locale)
	if err != nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.bundles[tag][namespace]
	return ok
}

// Translate resolves key in namespace for locale. The closest available
// locale is chosen with a language matcher; the base locale is the
// fallback when the matched locale has no such key.
func (c *Catalog) Translate(locale, namespace, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if tag, err := parse(locale); err == nil {
		if matched, ok := c.match(tag); ok {
			if text, ok := c.bundles[matched][namespace][key]; ok {
				return text, true
			}
		}
	}
	text, ok := c.bundles[c.base][namespace][key]
	return text, ok
}

// Namespaces returns the namespaces registered for locale, sorted.
func (c *Catalog) Namespaces(locale string) []string {
	tag, err := parse(locale)
	if err != nil {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.bundles[tag]))
	for ns := range c.bundles[tag] {
		names = append(names, ns)
	}
	sort.Strings(names)
	return names
}

// match picks the best available locale for tag. Must be called with mu held.
func (c *Catalog) match(tag language.Tag) (language.Tag, bool) {
	if _, ok := c.bundles[tag]; ok {
		return tag, true
	}
	if len(c.bundles) == 0 {
		return language.Und, false
	}

	// The matcher prefers its first entry on ties, so the base goes first.
	supported := []language.Tag{c.base}
	for t := range c.bundles {
		if t != c.base {
			supported = append(supported, t)
		}
	}
	sort.Slice(supported[1:], func(i, j int) bool {
		return supported[i+1].String() < supported[j+1].String()
	})

	_, idx, conf := language.NewMatcher(supported).Match(tag)
	if conf == language.No {
		return language.Und, false
	}
	return supported[idx], true
}

func parse(locale string) (language.Tag, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.Und, fmt.Errorf("%w: %q: %v", ErrInvalidLocale, locale, err)
	}
	return tag, nil
}
