package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/8thgencore/redlite/internal/compute"
	"github.com/8thgencore/redlite/internal/config"
	"github.com/8thgencore/redlite/internal/metrics"
	"github.com/8thgencore/redlite/internal/server"
	"github.com/8thgencore/redlite/internal/storage"
	"golang.org/x/sync/errgroup"
)

// ErrServerStopped is returned when the server stops while the application
// is still meant to be running, e.g. its listener was closed elsewhere
var ErrServerStopped = errors.New("server stopped unexpectedly")

// App represents the main application
type App struct {
	cfg     *config.Config
	log     *slog.Logger
	engine  *storage.Engine
	metrics *metrics.Metrics
	server  *server.Server
}

// New creates a new instance of the application
func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// Initialize storage engine
	engine := storage.NewEngine(log, storage.WithShards(cfg.Engine.Shards))

	// Initialize metrics
	m := metrics.New(engine.Len)

	// Initialize command handler
	handler := compute.NewHandler(log, engine)

	// Initialize server
	srv := server.NewServer(log, &cfg.Network, handler, m)

	return &App{
		cfg:     cfg,
		log:     log,
		engine:  engine,
		metrics: m,
		server:  srv,
	}, nil
}

// Run starts the application and blocks until ctx is done or a component fails
func (a *App) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", a.cfg.Network.Address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return a.Serve(ctx, listener)
}

// Serve runs the application on an existing listener
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	a.log.Info("Starting application",
		"env", a.cfg.Env,
		"shards", a.cfg.Engine.Shards,
		"max_connections", a.cfg.Network.MaxConnections,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.server.Serve(ctx, listener); err != nil {
			return err
		}
		if ctx.Err() == nil {
			return ErrServerStopped
		}
		return nil
	})

	if a.cfg.Engine.CleanupInterval > 0 {
		g.Go(func() error {
			a.engine.RunExpiryCycle(ctx, a.cfg.Engine.CleanupInterval)
			return nil
		})
	}

	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return a.metrics.Serve(ctx, a.cfg.Metrics.Address, a.log)
		})
	}

	err := g.Wait()
	a.log.Info("Application stopped")

	return err
}

// Addr returns the address the server listens on
func (a *App) Addr() net.Addr {
	return a.server.Addr()
}
