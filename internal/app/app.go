// Package app provides the top-level application lifecycle for the ledger
// server. It wires the ledger with its collaborators, seeds the example
// market and runs the HTTP server, WebSocket hub and snapshot exporter
// until the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictionledger/internal/config"
	"github.com/alanyoungcy/predictionledger/internal/server"
	"github.com/alanyoungcy/predictionledger/internal/server/handler"
	"github.com/alanyoungcy/predictionledger/internal/server/middleware"
	"github.com/alanyoungcy/predictionledger/internal/server/ws"
	"github.com/alanyoungcy/predictionledger/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()

	// listen is replaced in tests.
	listen func(network, addr string) (net.Listener, error)
	// ready, when set, receives the server address once it is listening.
	ready chan<- string
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
		listen: net.Listen,
	}
}

// Run wires all dependencies, seeds the example market when configured and
// blocks serving requests until the context is cancelled. It returns
// ctx.Err() after a clean shutdown.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "app: starting",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("id_scheme", a.cfg.Ledger.IDScheme),
		slog.Bool("chain", a.cfg.Chain.Enabled),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "app: dependencies wired",
		slog.String("bus", deps.BusName),
		slog.String("chain", deps.ChainName()),
		slog.Bool("audit", deps.AuditStore != nil),
		slog.Bool("export", deps.Exporter != nil),
		slog.Bool("notify", deps.Notifier.Enabled()),
	)

	startedAt := time.Now().UTC()
	events := service.NewEvents(deps.SignalBus, deps.AuditStore, deps.Notifier, nil, a.logger)
	markets := service.NewMarketService(deps.Ledger, events, nil, a.logger)
	trades := service.NewTradeService(deps.Ledger, deps.Chain, events, a.logger)
	resolutions := service.NewResolutionService(deps.Ledger, events, a.logger)
	positions := service.NewPositionService(deps.Ledger, a.logger)

	if a.cfg.Ledger.SeedExample {
		if _, err := markets.SeedExample(ctx); err != nil {
			return fmt.Errorf("app: seed example market: %w", err)
		}
	}

	hub := ws.NewHub(deps.SignalBus, ws.Config{
		StartedAt:   startedAt,
		MarketCount: deps.Ledger.MarketCount,
	}, a.logger)

	clientIPs, err := middleware.NewClientIPs(a.cfg.Server.TrustedProxies)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	var audit *handler.AuditHandler
	if deps.AuditStore != nil {
		audit = handler.NewAuditHandler(deps.AuditStore, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		AdminAPIKey:       a.cfg.Server.AdminAPIKey,
		RateLimitRequests: a.cfg.Server.RateLimitRequests,
		RateLimitWindow:   a.cfg.Server.RateLimitWindow.Duration,
		ClientIPs:         clientIPs,
	}, server.Handlers{
		Health: handler.NewHealthHandler(markets, handler.StatusInfo{
			Chain:     deps.ChainName(),
			Bus:       deps.BusName,
			StartedAt: startedAt,
		}),
		Markets:   handler.NewMarketHandler(markets, a.logger),
		Trades:    handler.NewTradeHandler(trades, a.logger),
		Positions: handler.NewPositionHandler(positions, a.logger),
		Admin:     handler.NewAdminHandler(resolutions, a.logger),
		Audit:     audit,
	}, hub, deps.RateLimiter, a.logger)

	ln, err := a.listen("tcp", fmt.Sprintf(":%d", a.cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	if a.ready != nil {
		a.ready <- ln.Addr().String()
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return hub.Run(ctx)
	})

	g.Go(func() error {
		return srv.Serve(ln)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if deps.Exporter != nil {
		g.Go(func() error {
			return deps.Exporter.Run(ctx)
		})
	}

	return g.Wait()
}

func (a *App) shutdownTimeout() time.Duration {
	if d := a.cfg.Server.ShutdownTimeout.Duration; d > 0 {
		return d
	}
	return 5 * time.Second
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("app: shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
