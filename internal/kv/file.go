package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// File is a Store persisted as one JSON object on disk. Every key is a
// top-level member of the object and every value must itself be JSON.
type File struct {
	mu     sync.RWMutex
	path   string
	doc    []byte
	closed bool
}

// OpenFile opens or creates the JSON document at path.
func OpenFile(path string) (*File, error) {
	if path == "" {
		path = "plughost.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	doc, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		doc = []byte("{}")
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	case !gjson.ValidBytes(doc) || !gjson.ParseBytes(doc).IsObject():
		// A corrupt document is replaced rather than failing the host.
		doc = []byte("{}")
	}

	return &File{path: path, doc: doc}, nil
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	res := gjson.GetBytes(f.doc, escapeKey(key))
	if !res.Exists() {
		return nil, ErrNotFound
	}
	return []byte(res.Raw), nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	doc, err := sjson.SetRawBytes(f.doc, escapeKey(key), value)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return f.flush(doc)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	doc, err := sjson.DeleteBytes(f.doc, escapeKey(key))
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return f.flush(doc)
}

func (f *File) Keys(_ context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.closed {
		return nil, ErrClosed
	}
	var keys []string
	gjson.ParseBytes(f.doc).ForEach(func(k, _ gjson.Result) bool {
		if strings.HasPrefix(k.String(), prefix) {
			keys = append(keys, k.String())
		}
		return true
	})
	sort.Strings(keys)
	return keys, nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// flush writes doc atomically and makes it current. Must be called with mu held.
func (f *File) flush(doc []byte) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, doc, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	f.doc = doc
	return nil
}

// escapeKey turns a raw key into a single gjson/sjson path component.
func escapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key) + 4)
	for i := 0; i < len(key); i++ {
		c := key[i]
		isWord := c >= 0x80 || c == '_' || c == '-' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !isWord {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	return b.String()
}
