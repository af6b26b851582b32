// Package app provides top-level application lifecycle management. It wires
// the stores, caches, blob storage, and services together and runs the HTTP
// API, the websocket hub, and the archive exporter until shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/infrabond/core/internal/config"
	"github.com/infrabond/core/internal/server"
	"github.com/infrabond/core/internal/server/handler"
	"github.com/infrabond/core/internal/server/ws"
)

// shutdownGrace is how long in-flight HTTP requests get to finish.
const shutdownGrace = 10 * time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the server
// goroutines, and blocks until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("storage", a.cfg.Storage.Driver),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	hub := ws.NewHub(deps.MemoryBus, a.logger)

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(a.logger),
		Projects: handler.NewProjectHandler(deps.Registry, a.logger),
		Bonds:    handler.NewBondHandler(deps.Bonds, a.logger),
		Markets:  handler.NewMarketHandler(deps.Markets, a.logger),
		Oracle:   handler.NewOracleHandler(deps.Oracle, a.logger),
		Yield:    handler.NewYieldHandler(deps.Yield, a.logger),
		Treasury: handler.NewTreasuryHandler(deps.Treasury, a.logger),
		Admin:    handler.NewAdminHandler(deps.Roles, deps.Emitter, a.logger),
	}

	srvCfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
	}
	if a.cfg.Server.RateLimitEnabled && deps.RateLimiter != nil {
		srvCfg.RateLimiter = deps.RateLimiter
		srvCfg.RateLimitPerMin = a.cfg.Server.RateLimitPerMin
	}
	srv := server.NewServer(srvCfg, handlers, hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if deps.Watcher != nil {
		g.Go(func() error {
			err := deps.Watcher.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if deps.Archiver != nil {
		interval := a.cfg.S3.ArchiveInterval.Duration
		g.Go(func() error {
			err := deps.Archiver.Run(gctx, interval)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
