package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dshills/plughost/internal/bundled"
	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/event"
	"github.com/dshills/plughost/internal/event/topic"
	"github.com/dshills/plughost/internal/i18n"
	"github.com/dshills/plughost/internal/kv"
	"github.com/dshills/plughost/internal/metrics"
	"github.com/dshills/plughost/internal/plugin"
	"github.com/dshills/plughost/internal/plugin/hostctx"
	"github.com/dshills/plughost/internal/plugin/lua"
)

// NavigateTopic carries plugin navigation requests to whatever front end
// is attached to the host bus.
const NavigateTopic topic.Topic = "host.navigate"

// host is the wired set of components behind a plughost process.
type host struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    kv.Store
	bus      *event.Bus
	catalog  *i18n.Catalog
	manager  *plugin.Manager
	recorder *metrics.Recorder
}

// newLogger builds the process logger from the log section.
func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// newHost opens storage and wires the plugin manager. Nothing is loaded yet.
func newHost(cfg *config.Config, logger *slog.Logger) (*host, error) {
	store, err := kv.Open(cfg.StorageOptions())
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	catalog, err := i18n.NewCatalog(cfg.Locale)
	if err != nil {
		store.Close()
		return nil, err
	}

	h := &host{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		bus:      event.NewBus(event.WithLogger(logger)),
		catalog:  catalog,
		recorder: metrics.New(metrics.WithRuntimeMetrics()),
	}

	hc := hostctx.New(
		hostctx.WithStore(store),
		hostctx.WithBus(h.bus),
		hostctx.WithNavigator(navigator(h.bus, logger)),
		hostctx.WithColorScheme(cfg.ColorScheme()),
		hostctx.WithLogger(logger),
	)
	modules := lua.NewModuleLoader(
		lua.WithFileURLs(cfg.External.AllowFile),
		lua.WithMaxModuleSize(cfg.External.MaxSize),
		lua.WithLogger(logger),
	)

	h.manager = plugin.NewManager(cfg.ManagerConfig(),
		plugin.WithHost(hc),
		plugin.WithManagerCatalog(catalog),
		plugin.WithModuleLoader(modules),
		plugin.WithLocalPlugins(bundled.All()...),
		plugin.WithManagerLogger(logger),
	)

	h.recorder.Attach(h.manager)
	h.recorder.WatchRegistry(h.manager.Registry())
	h.recorder.WatchBus(h.bus)
	return h, nil
}

// navigator logs each request and publishes it on NavigateTopic with a
// {"path": path} payload.
func navigator(bus *event.Bus, logger *slog.Logger) hostctx.Navigator {
	return hostctx.NavigatorFunc(func(path string) {
		logger.Info("Navigation requested.", "path", path)
		if err := bus.Publish(context.Background(), NavigateTopic, map[string]any{"path": path}); err != nil {
			logger.Warn("Failed to publish navigation.", "path", path, "error", err)
		}
	})
}

// Close releases external modules and the store.
func (h *host) Close() error {
	return errors.Join(h.manager.Close(), h.store.Close())
}
