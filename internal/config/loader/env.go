package loader

import (
	"os"
	"strconv"
	"strings"
)

// EnvLoader loads configuration from prefixed environment variables.
//
// PLUGHOST_EXTERNAL_ALLOW_FILE maps to the path external.allowFile: the
// first segment is the section, the rest form a camelCase key. A variable
// with a single segment maps to a top-level key.
type EnvLoader struct {
	prefix  string
	environ func() []string
	lists   map[string]bool
	ignore  map[string]bool
}

// EnvOption configures an EnvLoader.
type EnvOption func(*EnvLoader)

// WithEnviron replaces os.Environ as the variable source.
func WithEnviron(fn func() []string) EnvOption {
	return func(l *EnvLoader) {
		if fn != nil {
			l.environ = fn
		}
	}
}

// WithListPaths marks config paths whose values are comma-separated lists.
func WithListPaths(paths ...string) EnvOption {
	return func(l *EnvLoader) {
		for _, p := range paths {
			l.lists[p] = true
		}
	}
}

// WithIgnore skips variables that are not configuration keys, such as the
// variable naming the config file itself.
func WithIgnore(names ...string) EnvOption {
	return func(l *EnvLoader) {
		for _, n := range names {
			l.ignore[n] = true
		}
	}
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "PLUGHOST_").
func NewEnvLoader(prefix string, opts ...EnvOption) *EnvLoader {
	l := &EnvLoader{
		prefix:  prefix,
		environ: os.Environ,
		lists:   make(map[string]bool),
		ignore:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads environment variables and returns a configuration map.
// Empty values are kept: an empty list variable clears the list.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) || l.ignore[name] {
			continue
		}
		path := l.envToPath(name)
		if path == "" {
			continue
		}
		if l.lists[path] {
			setByPath(config, path, splitList(value))
			continue
		}
		setByPath(config, path, parseValue(value))
	}
	return config, nil
}

// envToPath converts PLUGHOST_EXTERNAL_ALLOW_FILE to external.allowFile.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	parts := strings.FieldsFunc(name, func(r rune) bool { return r == '_' })
	if len(parts) == 0 {
		return ""
	}

	section := strings.ToLower(parts[0])
	if len(parts) == 1 {
		return section
	}

	key := strings.ToLower(parts[1])
	for _, part := range parts[2:] {
		key += strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
	}
	return section + "." + key
}

// parseValue converts booleans and numbers, leaving everything else a string.
// Durations stay strings so the typed decoder can parse them.
func parseValue(s string) any {
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true
	case "false", "no", "off":
		return false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

func splitList(s string) []any {
	out := []any{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}
