package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/plughost/internal/plugin/hostctx"
)

// DefaultExternalTimeout bounds fetching and setting up one external plugin.
const DefaultExternalTimeout = 10 * time.Second

// Module is a fetched external plugin.
type Module interface {
	// Descriptor returns the plugin's descriptor.
	Descriptor() Descriptor

	// Close releases the module's resources. Renderables it contributed
	// stop working afterwards.
	Close() error
}

// ModuleLoader fetches and evaluates the module at a URL.
type ModuleLoader interface {
	Load(ctx context.Context, url string) (Module, error)
}

// ModuleLoaderFunc adapts a function to ModuleLoader.
type ModuleLoaderFunc func(ctx context.Context, url string) (Module, error)

// Load calls f.
func (f ModuleLoaderFunc) Load(ctx context.Context, url string) (Module, error) {
	return f(ctx, url)
}

type staticModule struct {
	d Descriptor
}

// NewModule wraps an in-process descriptor as a Module with a no-op Close.
func NewModule(d Descriptor) Module {
	return staticModule{d: d}
}

func (m staticModule) Descriptor() Descriptor { return m.d }
func (m staticModule) Close() error           { return nil }

// ExternalLoader installs plugins fetched from URLs at runtime.
// The allow list is the only trust boundary for external code.
type ExternalLoader struct {
	installer
	modules ModuleLoader

	mu       sync.Mutex
	retained []Module
}

// NewExternalLoader creates a loader that fetches through modules.
func NewExternalLoader(registry *Registry, host *hostctx.Context, modules ModuleLoader, opts ...LoaderOption) *ExternalLoader {
	return &ExternalLoader{
		installer: installer{
			registry: registry,
			host:     host,
			cfg:      newLoaderConfig("plugin.external", opts),
		},
		modules: modules,
	}
}

// Load fetches and installs each URL in order. A URL that fails to load is
// logged with a warning and skipped.
func (l *ExternalLoader) Load(ctx context.Context, urls []string) Report {
	rep := Report{Started: time.Now()}
	for _, url := range urls {
		st := l.loadOne(ctx, url)
		l.finish(st)
		rep.Plugins = append(rep.Plugins, st)
	}
	rep.Duration = time.Since(rep.Started)
	return rep
}

func (l *ExternalLoader) loadOne(ctx context.Context, url string) Status {
	st := Status{Source: SourceExternal, URL: url}
	start := time.Now()

	uctx, cancel := context.WithTimeout(ctx, l.cfg.timeout)
	defer cancel()

	mod, err := l.fetch(uctx, url)
	if err != nil {
		st.State = StateFailed
		st.Err = fmt.Errorf("%w: %s: %w", ErrModuleLoad, url, err)
		l.cfg.logger.Warn("Failed to load external plugin.", "url", url, "error", err)
		st.Duration = time.Since(start)
		return st
	}

	d := mod.Descriptor()
	l.install(uctx, d, &st)

	if st.State == StateSkipped {
		if cerr := mod.Close(); cerr != nil {
			l.cfg.logger.Debug("Failed to close skipped module.", "url", url, "error", cerr)
		}
	} else {
		// Failed setups may still have registered renderables backed by the module.
		l.mu.Lock()
		l.retained = append(l.retained, mod)
		l.mu.Unlock()
	}

	st.Duration = time.Since(start)
	return st
}

func (l *ExternalLoader) fetch(ctx context.Context, url string) (mod Module, err error) {
	if l.modules == nil {
		return nil, ErrNoModuleLoader
	}
	defer func() {
		if rec := recover(); rec != nil {
			mod = nil
			err = fmt.Errorf("module loader panicked: %v", rec)
		}
	}()
	mod, err = l.modules.Load(ctx, url)
	if err == nil && mod == nil {
		err = errors.New("module loader returned no module")
	}
	return mod, err
}

// Retained returns the number of modules held open.
func (l *ExternalLoader) Retained() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.retained)
}

// Close closes every retained module.
func (l *ExternalLoader) Close() error {
	l.mu.Lock()
	mods := l.retained
	l.retained = nil
	l.mu.Unlock()

	var errs []error
	for _, m := range mods {
		if err := m.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
