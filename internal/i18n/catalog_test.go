package i18n

import (
	"errors"
	"testing"
)

func TestCatalogAddAndHas(t *testing.T) {
	c, err := NewCatalog("en")
	if err != nil {
		t.Fatalf("NewCatalog() error = %v", err)
	}

	if c.HasResourceBundle("en", "polls") {
		t.Fatal("HasResourceBundle() = true before add")
	}
	if err := c.AddResourceBundle("en", "polls", Resources{"title": "Polls"}); err != nil {
		t.Fatalf("AddResourceBundle() error = %v", err)
	}
	if !c.HasResourceBundle("en", "polls") {
		t.Error("HasResourceBundle() = false after add")
	}
	if c.HasResourceBundle("de", "polls") {
		t.Error("HasResourceBundle(de) = true, want false")
	}
}

func TestCatalogTranslateFallback(t *testing.T) {
	c, _ := NewCatalog("en")
	_ = c.AddResourceBundle("en", "polls", Resources{"title": "Polls", "vote": "Vote"})
	_ = c.AddResourceBundle("de", "polls", Resources{"title": "Umfragen"})

	tests := []struct {
		locale, key, want string
		ok                bool
	}{
		{"de", "title", "Umfragen", true},
		{"de-AT", "title", "Umfragen", true},
		{"de", "vote", "Vote", true},
		{"fr", "title", "Polls", true},
		{"en", "missing", "", false},
		{"not a tag!", "title", "Polls", true},
	}

	for _, tt := range tests {
		got, ok := c.Translate(tt.locale, "polls", tt.key)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Translate(%q, %q) = %q, %v; want %q, %v", tt.locale, tt.key, got, ok, tt.want, tt.ok)
		}
	}
}

func TestCatalogInvalidInput(t *testing.T) {
	if _, err := NewCatalog("??"); !errors.Is(err, ErrInvalidLocale) {
		t.Errorf("NewCatalog(??) error = %v, want ErrInvalidLocale", err)
	}

	c, _ := NewCatalog("en")
	if err := c.AddResourceBundle("en", "", Resources{}); !errors.Is(err, ErrEmptyNamespace) {
		t.Errorf("AddResourceBundle(empty ns) error = %v, want ErrEmptyNamespace", err)
	}
	if err := c.AddResourceBundle("??", "ns", Resources{}); !errors.Is(err, ErrInvalidLocale) {
		t.Errorf("AddResourceBundle(bad locale) error = %v, want ErrInvalidLocale", err)
	}
}

func TestCatalogNamespaces(t *testing.T) {
	c, _ := NewCatalog("en")
	_ = c.AddResourceBundle("en", "polls", Resources{"a": "b"})
	_ = c.AddResourceBundle("en", "bookmarks", Resources{"a": "b"})

	got := c.Namespaces("en")
	if len(got) != 2 || got[0] != "bookmarks" || got[1] != "polls" {
		t.Errorf("Namespaces() = %v, want [bookmarks polls]", got)
	}
	if c.BaseLocale() != "en" {
		t.Errorf("BaseLocale() = %q", c.BaseLocale())
	}
}
