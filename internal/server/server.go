package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/infrabond/core/internal/domain"
	"github.com/infrabond/core/internal/server/handler"
	"github.com/infrabond/core/internal/server/middleware"
	"github.com/infrabond/core/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	RateLimiter     domain.RateLimiter // nil disables rate limiting
	RateLimitPerMin int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Projects *handler.ProjectHandler
	Bonds    *handler.BondHandler
	Markets  *handler.MarketHandler
	Oracle   *handler.OracleHandler
	Yield    *handler.YieldHandler
	Treasury *handler.TreasuryHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API for the bond protocol core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, rate limiting) and attaches the
// WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Project registry.
	mux.HandleFunc("POST /api/projects", handlers.Projects.RegisterProject)
	mux.HandleFunc("GET /api/projects", handlers.Projects.ListProjects)
	mux.HandleFunc("GET /api/projects/{id}", handlers.Projects.GetProject)
	mux.HandleFunc("POST /api/projects/{id}/open-funding", handlers.Projects.OpenFunding)
	mux.HandleFunc("POST /api/projects/{id}/status", handlers.Projects.UpdateStatus)

	// Bond ledger.
	mux.HandleFunc("POST /api/projects/{id}/bond", handlers.Bonds.CreateBond)
	mux.HandleFunc("GET /api/projects/{id}/bond", handlers.Bonds.GetBond)
	mux.HandleFunc("POST /api/projects/{id}/bond/purchase", handlers.Bonds.PurchaseBond)
	mux.HandleFunc("POST /api/projects/{id}/bond/transfer", handlers.Bonds.TransferBond)
	mux.HandleFunc("GET /api/projects/{id}/bond/holdings/{address}", handlers.Bonds.GetHolding)

	// Milestones and oracle verdicts.
	mux.HandleFunc("POST /api/projects/{id}/milestones", handlers.Oracle.SetupMilestones)
	mux.HandleFunc("GET /api/projects/{id}/milestones", handlers.Oracle.ListMilestones)
	mux.HandleFunc("GET /api/projects/{id}/progress", handlers.Oracle.GetProgress)
	mux.HandleFunc("POST /api/projects/{id}/milestones/{index}/verify", handlers.Oracle.VerifyMilestone)
	mux.HandleFunc("POST /api/projects/{id}/fail", handlers.Oracle.MarkFailed)
	mux.HandleFunc("POST /api/oracle/fail-overdue", handlers.Oracle.FailOverdue)

	// Yield distribution.
	mux.HandleFunc("GET /api/projects/{id}/yield", handlers.Yield.GetYieldInfo)
	mux.HandleFunc("GET /api/projects/{id}/yield/claimable/{address}", handlers.Yield.GetClaimable)
	mux.HandleFunc("POST /api/projects/{id}/yield/deposit", handlers.Yield.DepositRevenue)
	mux.HandleFunc("POST /api/projects/{id}/yield/claim", handlers.Yield.ClaimYield)

	// Outcome markets.
	mux.HandleFunc("POST /api/projects/{id}/market", handlers.Markets.OpenMarket)
	mux.HandleFunc("GET /api/projects/{id}/market", handlers.Markets.GetProjectMarket)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Markets.Quote)
	mux.HandleFunc("POST /api/markets/{id}/buy", handlers.Markets.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Markets.Sell)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Markets.ListTrades)
	mux.HandleFunc("GET /api/markets/{id}/holdings/{address}", handlers.Markets.GetOutcomeHolding)
	mux.HandleFunc("POST /api/markets/{id}/resolve", handlers.Markets.ResolveMarket)
	mux.HandleFunc("POST /api/markets/{id}/claim", handlers.Markets.ClaimWinnings)
	mux.HandleFunc("POST /api/markets/{id}/backstop", handlers.Markets.Backstop)

	// Treasury.
	mux.HandleFunc("POST /api/treasury/deposit", handlers.Treasury.Deposit)
	mux.HandleFunc("GET /api/treasury/balances/{account}", handlers.Treasury.GetBalance)

	// Role management.
	mux.HandleFunc("POST /api/admin/roles/grant", handlers.Admin.GrantRole)
	mux.HandleFunc("POST /api/admin/roles/revoke", handlers.Admin.RevokeRole)

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	if cfg.RateLimiter != nil && cfg.RateLimitPerMin > 0 {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimitPerMin, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
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
