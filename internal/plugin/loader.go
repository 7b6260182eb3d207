package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// loaderConfig holds settings shared by the local and external loaders.
type loaderConfig struct {
	allow       CapabilitySet
	catalog     *i18n.Catalog
	logger      *slog.Logger
	observer    func(Status)
	development bool
	onReset     func()
	timeout     time.Duration
}

// LoaderOption configures a LocalLoader or an ExternalLoader.
type LoaderOption func(*loaderConfig)

// WithAllow sets the host allow list. An empty set allows every claimed capability.
func WithAllow(allow CapabilitySet) LoaderOption {
	return func(c *loaderConfig) {
		c.allow = allow
	}
}

// WithCatalog sets the catalog that receives plugin translations.
func WithCatalog(catalog *i18n.Catalog) LoaderOption {
	return func(c *loaderConfig) {
		c.catalog = catalog
	}
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(c *loaderConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver sets a function called with each plugin's final status.
func WithObserver(fn func(Status)) LoaderOption {
	return func(c *loaderConfig) {
		c.observer = fn
	}
}

// WithDevelopment makes the local loader reset the registry before each load.
func WithDevelopment(dev bool) LoaderOption {
	return func(c *loaderConfig) {
		c.development = dev
	}
}

// WithOnReset sets a function called after the local loader resets the registry.
func WithOnReset(fn func()) LoaderOption {
	return func(c *loaderConfig) {
		c.onReset = fn
	}
}

// WithTimeout sets the per-URL timeout of the external loader.
func WithTimeout(d time.Duration) LoaderOption {
	return func(c *loaderConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func newLoaderConfig(subsystem string, opts []LoaderOption) loaderConfig {
	c := loaderConfig{
		logger:  slog.Default(),
		timeout: DefaultExternalTimeout,
	}
	for _, opt := range opts {
		opt(&c)
	}
	c.logger = c.logger.With("subsystem", subsystem)
	return c
}

// installer runs the steps common to both loaders: the version gate,
// translations, and setup with merge.
type installer struct {
	registry *Registry
	host     *hostctx.Context
	cfg      loaderConfig
}

func (in *installer) install(ctx context.Context, d Descriptor, st *Status) {
	st.ID = d.ID
	st.Name = d.Name
	st.Version = d.Version
	st.APIVersion = d.APIVersion

	if !d.Compatible() {
		st.State = StateSkipped
		st.Err = fmt.Errorf("plugin %q: %w: %q", d.ID, ErrIncompatibleAPI, d.APIVersion)
		return
	}

	claimed := d.Claimed()
	st.Allowed = Allowed(claimed, in.cfg.allow)
	in.registerTranslations(d)

	// Registrations after setup returns still merge but are not counted.
	var (
		mu     sync.Mutex
		done   bool
		merged = newMergeResult()
	)
	register := func(ex Exports) {
		res := in.registry.Merge(d.ID, claimed, in.cfg.allow, ex)
		if res.Err != nil {
			in.cfg.logger.Debug("Attachment factory failed.", "plugin", d.ID, "error", res.Err)
		}
		mu.Lock()
		defer mu.Unlock()
		if !done {
			merged.Add(res)
		}
	}

	err := runSetup(d, SetupArgs{Context: ctx, Host: in.host, Register: register, Translate: in.translator(d)})

	mu.Lock()
	done = true
	st.Merge = merged
	mu.Unlock()

	if err != nil {
		st.State = StateFailed
		st.Err = err
		return
	}
	st.State = StateLoaded
}

func runSetup(d Descriptor, args SetupArgs) (err error) {
	if d.Setup == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin %q: %w: %v", d.ID, ErrSetupPanic, rec)
		}
	}()
	if serr := d.Setup(args); serr != nil {
		return fmt.Errorf("plugin %q: %w: %w", d.ID, ErrSetupFailed, serr)
	}
	return nil
}

// registerTranslations adds the plugin's bundles under its ID namespace,
// once: a namespace already present for the base locale is left alone.
func (in *installer) registerTranslations(d Descriptor) {
	cat := in.cfg.catalog
	if cat == nil || len(d.Translations) == 0 {
		return
	}
	if cat.HasResourceBundle(cat.BaseLocale(), d.ID) {
		return
	}
	for locale, res := range d.Translations {
		if err := cat.AddResourceBundle(locale, d.ID, res); err != nil {
			in.cfg.logger.Debug("Translation bundle rejected.", "plugin", d.ID, "locale", locale, "error", err)
		}
	}
}

// translator resolves through the catalog under the plugin's namespace.
// Without a catalog it reads the descriptor's bundles for the exact locale.
func (in *installer) translator(d Descriptor) TranslateFunc {
	cat := in.cfg.catalog
	if cat == nil {
		return func(locale, key string) string {
			if text, ok := d.Translations[locale][key]; ok {
				return text
			}
			return key
		}
	}
	return func(locale, key string) string {
		if locale == "" {
			locale = cat.BaseLocale()
		}
		if text, ok := cat.Translate(locale, d.ID, key); ok {
			return text
		}
		return key
	}
}

func (in *installer) finish(st Status) {
	attrs := []any{"plugin", st.ID, "source", st.Source.String()}
	if st.URL != "" {
		attrs = append(attrs, "url", st.URL)
	}
	switch st.State {
	case StateLoaded:
		in.cfg.logger.Info("Plugin loaded.", append(attrs, "version", st.Version, "capabilities", st.Allowed.String())...)
	case StateSkipped:
		in.cfg.logger.Debug("Plugin skipped.", append(attrs, "apiVersion", st.APIVersion)...)
	case StateFailed:
		in.cfg.logger.Debug("Plugin setup failed.", append(attrs, "error", st.Err)...)
	}
	if in.cfg.observer != nil {
		in.cfg.observer(st)
	}
}

// LocalLoader installs plugins compiled into the host.
type LocalLoader struct {
	installer
}

// NewLocalLoader creates a loader writing into registry.
func NewLocalLoader(registry *Registry, host *hostctx.Context, opts ...LoaderOption) *LocalLoader {
	return &LocalLoader{installer{
		registry: registry,
		host:     host,
		cfg:      newLoaderConfig("plugin.local", opts),
	}}
}

// Load installs descriptors in order. In development mode the registry is
// reset first. A failing plugin is recorded in the report and loading
// continues.
func (l *LocalLoader) Load(ctx context.Context, descriptors []Descriptor) Report {
	rep := Report{Started: time.Now()}
	if l.cfg.development {
		l.Reset()
	}

	for _, d := range descriptors {
		st := Status{Source: SourceLocal}
		start := time.Now()
		l.install(ctx, d, &st)
		st.Duration = time.Since(start)
		l.finish(st)
		rep.Plugins = append(rep.Plugins, st)
	}

	rep.Duration = time.Since(rep.Started)
	return rep
}

// Reset empties the registry.
func (l *LocalLoader) Reset() {
	l.registry.Reset()
	if l.cfg.onReset != nil {
		l.cfg.onReset()
	}
}
