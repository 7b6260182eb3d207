package config

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/plughost/internal/config/watcher"
	"github.com/dshills/plughost/internal/plugin"
)

// Reconfigurer applies a new plugin configuration. *plugin.Manager
// satisfies it.
type Reconfigurer interface {
	Reconfigure(ctx context.Context, cfg plugin.ManagerConfig) plugin.Report
}

// Reloader re-reads the config file when it changes and reconfigures the
// plugin manager. It only watches in development mode.
type Reloader struct {
	path   string
	target Reconfigurer
	logger *slog.Logger
	opts   []LoadOption

	debounce time.Duration
	watcher  *watcher.Watcher

	mu        sync.RWMutex
	current   *Config
	listeners []func(*Config)

	// ctx is the context passed to Start, used for reloads the watcher triggers.
	ctx context.Context
}

// ReloaderOption configures a Reloader.
type ReloaderOption func(*Reloader)

// WithReloaderLogger sets the logger.
func WithReloaderLogger(l *slog.Logger) ReloaderOption {
	return func(r *Reloader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReloadDebounce sets the quiet period before a change is applied.
func WithReloadDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.debounce = d
	}
}

// WithLoadOptions passes options to every Load.
func WithLoadOptions(opts ...LoadOption) ReloaderOption {
	return func(r *Reloader) {
		r.opts = append(r.opts, opts...)
	}
}

// NewReloader creates a reloader for the file at path. current is the
// configuration the process started with.
func NewReloader(path string, current *Config, target Reconfigurer, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		path:     path,
		target:   target,
		current:  current,
		logger:   slog.Default(),
		debounce: 200 * time.Millisecond,
		ctx:      context.Background(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("subsystem", "config")
	return r
}

// OnChange registers fn to run after each applied configuration.
func (r *Reloader) OnChange(fn func(*Config)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Current returns the configuration in effect.
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start watches the config file until ctx is done or Stop is called.
// In production mode, or without a file, it does nothing.
func (r *Reloader) Start(ctx context.Context) error {
	if r.path == "" || r.Current().Production {
		r.logger.Debug("Config watching disabled.", "path", r.path)
		return nil
	}

	w := watcher.New(watcher.WithDebounce(r.debounce), watcher.WithLogger(r.logger))
	if err := w.Watch(r.path); err != nil {
		return err
	}
	w.OnChange(r.handle)

	r.mu.Lock()
	r.ctx = ctx
	r.watcher = w
	r.mu.Unlock()

	if err := w.Start(); err != nil {
		return err
	}
	r.logger.Info("Watching config file.", "path", r.path)

	go func() {
		<-ctx.Done()
		w.Stop()
	}()
	return nil
}

// Stop stops watching.
func (r *Reloader) Stop() {
	r.mu.RLock()
	w := r.watcher
	r.mu.RUnlock()
	if w != nil {
		w.Stop()
	}
}

func (r *Reloader) handle(ev watcher.Event) {
	if ev.Op == watcher.OpRemove || ev.Op == watcher.OpRename {
		r.logger.Warn("Config file removed; keeping current configuration.", "path", ev.Path)
		return
	}
	r.mu.RLock()
	ctx := r.ctx
	r.mu.RUnlock()

	if _, err := r.Reload(ctx); err != nil {
		r.logger.Warn("Config reload failed; keeping current configuration.", "path", ev.Path, "error", err)
	}
}

// Reload reads the file now and, when valid, reconfigures the target.
// An invalid file leaves the current configuration in place.
func (r *Reloader) Reload(ctx context.Context) (plugin.Report, error) {
	cfg, err := Load(r.path, r.opts...)
	if err != nil {
		return plugin.Report{}, err
	}

	r.mu.Lock()
	prev := r.current
	r.current = cfg
	listeners := make([]func(*Config), len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.Unlock()

	if prev != nil && restartRequired(prev, cfg) {
		r.logger.Warn("Config changes to storage, http or log take effect after restart.")
	}

	rep := r.target.Reconfigure(ctx, cfg.ManagerConfig())
	r.logger.Info("Configuration reloaded.",
		"loaded", rep.Count(plugin.StateLoaded),
		"failed", rep.Count(plugin.StateFailed),
	)

	for _, fn := range listeners {
		fn(cfg)
	}
	return rep, nil
}

func restartRequired(a, b *Config) bool {
	return a.Storage != b.Storage || a.HTTP != b.HTTP || a.Log != b.Log || a.Locale != b.Locale
}
