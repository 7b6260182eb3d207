package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"

	"github.com/dshills/plughost/internal/config/loader"
	"github.com/dshills/plughost/internal/kv"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PLUGHOST_"

// EnvConfigFile names the config file when no path is given on the command line.
const EnvConfigFile = EnvPrefix + "CONFIG"

// Config is the host configuration.
type Config struct {
	// Production keeps the registry between local loads.
	Production bool `toml:"production"`

	// Locale is the base locale of the translation catalog.
	Locale string `toml:"locale"`

	// Theme is the initial color scheme: light or dark.
	Theme string `toml:"theme"`

	Plugins  PluginsConfig  `toml:"plugins"`
	External ExternalConfig `toml:"external"`
	Storage  StorageConfig  `toml:"storage"`
	HTTP     HTTPConfig     `toml:"http"`
	Log      LogConfig      `toml:"log"`
}

// PluginsConfig configures local plugins.
type PluginsConfig struct {
	// Allow lists the capabilities local plugins may use. Empty allows all.
	Allow []string `toml:"allow"`

	// Disabled lists local plugin IDs that are not loaded.
	Disabled []string `toml:"disabled"`
}

// ExternalConfig configures plugins loaded from URLs.
type ExternalConfig struct {
	URLs []string `toml:"urls"`

	// Allow lists the capabilities external plugins may use. Empty allows all.
	Allow []string `toml:"allow"`

	// Timeout bounds fetching and setting up one external plugin.
	Timeout Duration `toml:"timeout"`

	// AllowFile permits file:// URLs.
	AllowFile bool `toml:"allowFile"`

	// MaxSize caps a fetched module in bytes.
	MaxSize int64 `toml:"maxSize"`
}

// StorageConfig selects the plugin storage backend.
type StorageConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

// HTTPConfig configures the HTTP surface.
type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Duration is a time.Duration written as a string like "10s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Default returns the development configuration.
func Default() *Config {
	return &Config{
		Locale: "en",
		Theme:  string(hostctx.Light),
		External: ExternalConfig{
			Timeout: Duration(plugin.DefaultExternalTimeout),
			MaxSize: 1 << 20,
		},
		Storage: StorageConfig{Backend: kv.BackendMemory},
		HTTP:    HTTPConfig{Addr: "127.0.0.1:8420"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// listPaths are the keys environment overrides split on commas.
var listPaths = []string{
	"plugins.allow",
	"plugins.disabled",
	"external.urls",
	"external.allow",
}

// LoadOption configures Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	fs      loader.FileSystem
	environ func() []string
}

// WithFS reads config files from fs.
func WithFS(fs loader.FileSystem) LoadOption {
	return func(o *loadOptions) { o.fs = fs }
}

// WithEnviron replaces os.Environ as the source of overrides.
func WithEnviron(fn func() []string) LoadOption {
	return func(o *loadOptions) { o.environ = fn }
}

// Load builds a configuration from defaults, the TOML file at path (if any)
// and PLUGHOST_* environment overrides, in increasing priority, and
// validates it. A missing file is not an error.
func Load(path string, opts ...LoadOption) (*Config, error) {
	o := loadOptions{fs: loader.DefaultFS()}
	for _, opt := range opts {
		opt(&o)
	}

	merged := map[string]any{}
	if path != "" {
		file, err := loader.NewTOMLLoaderWithFS(o.fs, path).Load()
		if err != nil {
			return nil, err
		}
		merged = loader.DeepMerge(merged, file)
	}

	env, err := loader.NewEnvLoader(EnvPrefix,
		loader.WithEnviron(o.environ),
		loader.WithListPaths(listPaths...),
		loader.WithIgnore(EnvConfigFile),
	).Load()
	if err != nil {
		return nil, err
	}
	merged = loader.DeepMerge(merged, env)

	cfg, err := decode(merged)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a TOML document over the defaults without environment
// overrides and validates it.
func Parse(data []byte) (*Config, error) {
	m, err := loader.NewTOMLLoader("").LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	cfg, err := decode(m)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode re-encodes the merged tree and decodes it strictly over the
// defaults, so unknown keys from any source are reported.
func decode(m map[string]any) (*Config, error) {
	cfg := Default()
	if len(m) == 0 {
		return cfg, nil
	}
	data, err := toml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding merged config: %w", err)
	}
	if err := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if _, err := language.Parse(c.Locale); err != nil {
		add("locale", "invalid locale %q", c.Locale)
	}
	if c.Theme != string(hostctx.Light) && c.Theme != string(hostctx.Dark) {
		add("theme", "must be light or dark, got %q", c.Theme)
	}
	if _, err := plugin.ParseCapabilitySet(c.Plugins.Allow); err != nil {
		add("plugins.allow", "%v", err)
	}
	if _, err := plugin.ParseCapabilitySet(c.External.Allow); err != nil {
		add("external.allow", "%v", err)
	}
	if c.External.Timeout <= 0 {
		add("external.timeout", "must be positive")
	}
	if c.External.MaxSize < 0 {
		add("external.maxSize", "must not be negative")
	}
	for i, raw := range c.External.URLs {
		u, err := url.Parse(raw)
		switch {
		case err != nil:
			add(fmt.Sprintf("external.urls[%d]", i), "%v", err)
		case u.Scheme == "http" || u.Scheme == "https":
		case u.Scheme == "file" && c.External.AllowFile:
		default:
			add(fmt.Sprintf("external.urls[%d]", i), "unsupported scheme %q", u.Scheme)
		}
	}

	switch c.Storage.Backend {
	case kv.BackendMemory:
	case kv.BackendFile, kv.BackendSQLite, kv.BackendLevelDB:
		if c.Storage.Path == "" {
			add("storage.path", "required for the %s backend", c.Storage.Backend)
		}
	default:
		add("storage.backend", "unknown backend %q", c.Storage.Backend)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format", "must be text or json, got %q", c.Log.Format)
	}
	return errors.Join(errs...)
}

// ManagerConfig converts the plugin sections for plugin.NewManager.
// The config must have passed Validate.
func (c *Config) ManagerConfig() plugin.ManagerConfig {
	allow, _ := plugin.ParseCapabilitySet(c.Plugins.Allow)
	extAllow, _ := plugin.ParseCapabilitySet(c.External.Allow)
	return plugin.ManagerConfig{
		Production:      c.Production,
		Allow:           allow,
		ExternalAllow:   extAllow,
		ExternalURLs:    slices.Clone(c.External.URLs),
		ExternalTimeout: c.External.Timeout.Std(),
		Disabled:        slices.Clone(c.Plugins.Disabled),
	}
}

// StorageOptions returns the kv.Open options.
func (c *Config) StorageOptions() kv.Options {
	return kv.Options{Backend: c.Storage.Backend, Path: c.Storage.Path}
}

// ColorScheme returns the configured theme.
func (c *Config) ColorScheme() hostctx.ColorScheme {
	return hostctx.ParseColorScheme(c.Theme)
}

// LogLevel returns the configured slog level.
func (c *Config) LogLevel() slog.Level {
	l, _ := parseLevel(c.Log.Level)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
	return l, nil
}
