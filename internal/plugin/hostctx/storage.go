package hostctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dshills/plughost/internal/kv"
)

// StoragePrefix namespaces every plugin storage key in the backing store.
const StoragePrefix = "plughost:"

// Storage is the JSON key-value capability given to plugins.
type Storage struct {
	store  kv.Store
	logger *slog.Logger
}

// Get returns the decoded value stored under key, or nil when it is
// missing, unreadable or not valid JSON. It never panics.
func (s *Storage) Get(ctx context.Context, key string) any {
	raw, err := s.store.Get(ctx, StoragePrefix+key)
	if err != nil {
		if !errors.Is(err, kv.ErrNotFound) {
			s.logger.Debug("Storage read failed.", "key", key, "error", err)
		}
		return nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		s.logger.Debug("Storage value is not JSON.", "key", key, "error", err)
		return nil
	}
	return v
}

// Set stores value under key as JSON.
func (s *Storage) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.store.Set(ctx, StoragePrefix+key, raw); err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	return nil
}
