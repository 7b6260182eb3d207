// Package bundled contains the local plugins compiled into plughost.
//
// Polls adds a poll feed item, a composer action to create one, voting item
// actions, a results modal and a /polls page. Bookmarks adds a bookmark
// action to every item, a /bookmarks page and a composer attachment, and
// bookmarks every poll created in the session through the host event bus.
package bundled

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// Errors returned by bundled plugin actions.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("poll is closed")
)

// All returns every bundled plugin in load order. Each call returns fresh
// plugin instances.
func All() []plugin.Descriptor {
	return []plugin.Descriptor{Polls(), Bookmarks()}
}

// loadJSON decodes the storage value under key into v. Missing or malformed
// values leave v untouched.
func loadJSON(ctx context.Context, s *hostctx.Storage, key string, v any) {
	raw := s.Get(ctx, key)
	if raw == nil {
		return
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, v)
}

func propString(p plugin.Props, key string) string {
	s, _ := p[key].(string)
	return s
}
