package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/plughost/internal/api"
	"github.com/dshills/plughost/internal/config"
	"github.com/dshills/plughost/internal/plugin"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve the registry API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http.addr)")
	return cmd
}

func serve(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := newLogger(cfg, os.Stderr)
	h, err := newHost(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(); err != nil {
			logger.Warn("Shutdown cleanup failed.", "error", err)
		}
	}()

	rep := h.manager.Load(ctx)
	logger.Info("Plugins loaded.",
		"loaded", rep.Count(plugin.StateLoaded),
		"skipped", rep.Count(plugin.StateSkipped),
		"failed", rep.Count(plugin.StateFailed),
	)

	reloader := config.NewReloader(configPath, cfg, h.manager, config.WithReloaderLogger(logger))
	if err := reloader.Start(ctx); err != nil {
		logger.Warn("Config watching unavailable.", "path", configPath, "error", err)
	}
	defer reloader.Stop()

	handlers := api.NewHandlers(h.manager,
		api.WithTranslator(h.catalog),
		api.WithMetrics(h.recorder.Handler()),
		api.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting server.", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server.")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("Server stopped.")
	return err
}
