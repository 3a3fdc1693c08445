package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
	"github.com/alanyoungcy/billvault/internal/server/handler"
	"github.com/alanyoungcy/billvault/internal/server/middleware"
	"github.com/alanyoungcy/billvault/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKeys maps bearer tokens to the principal addresses they act as. If
	// empty, authentication is disabled.
	APIKeys map[string]string
	// RateLimit caps requests per client IP per RateWindow when a limiter is
	// configured. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Series        *handler.SeriesHandler
	Subscriptions *handler.SubscriptionHandler
	Repos         *handler.RepoHandler
	Accounting    *handler.AccountingHandler
}

// Server is the HTTP + WebSocket API server for the vault.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (auth, logging, rate limiting, CORS) and attaches
// the WebSocket hub. limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Series lifecycle and pricing.
	mux.HandleFunc("POST /api/series", handlers.Series.Create)
	mux.HandleFunc("GET /api/series", handlers.Series.List)
	mux.HandleFunc("GET /api/series/{id}", handlers.Series.Get)
	mux.HandleFunc("GET /api/series/{id}/price", handlers.Series.Price)
	mux.HandleFunc("POST /api/series/{id}/activate", handlers.Series.Activate)
	mux.HandleFunc("POST /api/series/{id}/mature", handlers.Series.Mature)
	mux.HandleFunc("POST /api/series/{id}/close", handlers.Series.Close)

	// Subscription and redemption.
	mux.HandleFunc("POST /api/series/{id}/subscribe", handlers.Subscriptions.Subscribe)
	mux.HandleFunc("POST /api/series/{id}/redeem", handlers.Subscriptions.Redeem)
	mux.HandleFunc("GET /api/series/{id}/position", handlers.Subscriptions.Position)

	// Repo positions.
	mux.HandleFunc("POST /api/repos", handlers.Repos.Open)
	mux.HandleFunc("GET /api/repos", handlers.Repos.List)
	mux.HandleFunc("GET /api/repos/{id}", handlers.Repos.Get)
	mux.HandleFunc("POST /api/repos/{id}/close", handlers.Repos.Close)
	mux.HandleFunc("POST /api/repos/{id}/default", handlers.Repos.Default)

	// Accounting.
	mux.HandleFunc("GET /api/accounting", handlers.Accounting.Summary)
	mux.HandleFunc("GET /api/accounting/audit", handlers.Accounting.Audit)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain inside out. At runtime a request passes
	// CORS, then rate limiting, then auth, then logging, so the request log
	// carries the authenticated principal.
	var h http.Handler = mux

	h = middleware.Logging(logger)(h)

	h = middleware.Auth(cfg.APIKeys)(h)

	// Per-IP rate limiting when configured.
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}

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
