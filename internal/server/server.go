// Package server exposes the ledger over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/server/handler"
	"github.com/alanyoungcy/predictionledger/internal/server/middleware"
	"github.com/alanyoungcy/predictionledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminAPIKey guards the admin routes; empty disables the check.
	AdminAPIKey       string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// ClientIPs keys the rate limit. Nil uses the connection address.
	ClientIPs *middleware.ClientIPs
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Positions *handler.PositionHandler
	Admin     *handler.AdminHandler
	// Audit is nil when no audit store is configured.
	Audit *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Mutating routes are
// rate limited per client IP when limiter is non-nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	limited := middleware.RateLimit(limiter, cfg.RateLimitRequests, cfg.RateLimitWindow, cfg.ClientIPs, logger)
	admin := middleware.Auth(cfg.AdminAPIKey)

	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Health.Status)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.Handle("POST /api/markets", limited(http.HandlerFunc(handlers.Markets.CreateMarket)))
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Markets.ListTrades)

	mux.Handle("POST /api/trades", limited(http.HandlerFunc(handlers.Trades.PlaceTrade)))

	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/trades", handlers.Positions.ListTrades)

	mux.Handle("POST /api/admin/resolve", admin(limited(http.HandlerFunc(handlers.Admin.ResolveMarket))))
	mux.Handle("GET /api/admin/reconcile", admin(http.HandlerFunc(handlers.Positions.Reconcile)))
	if handlers.Audit != nil {
		mux.Handle("GET /api/admin/audit", admin(http.HandlerFunc(handlers.Audit.ListEntries)))
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Serve accepts connections on ln until the server is shut down.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
