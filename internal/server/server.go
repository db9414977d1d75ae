// Package server wires the operator HTTP + WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/parlayhq/parlayquoter/internal/server/handler"
	"github.com/parlayhq/parlayquoter/internal/server/middleware"
	"github.com/parlayhq/parlayquoter/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port           int
	CORSOrigins    []string
	APIKey         string // if empty, authentication is disabled
	RateLimitRPS   float64
	RateLimitBurst int
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Status  *handler.StatusHandler
	History *handler.HistoryHandler
	Control *handler.ControlHandler
	Stream  *handler.StreamHandler
}

// Server is the headless HTTP + WebSocket API server for the bot.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (rate limit, auth, logging, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth semantics beyond the shared chain).
	mux.HandleFunc("GET /api/health", handlers.Status.HealthCheck)

	// State snapshots and histories.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/rfq-history", handlers.History.GetRFQHistory)
	mux.HandleFunc("GET /api/quote-history", handlers.History.GetQuoteHistory)
	mux.HandleFunc("GET /api/accepted-quotes", handlers.History.GetAcceptedQuotes)
	mux.HandleFunc("GET /api/available-legs", handlers.History.GetAvailableLegs)

	// Orchestrator controls.
	mux.HandleFunc("POST /api/auto-confirm/toggle", handlers.Control.ToggleAutoConfirm)
	mux.HandleFunc("POST /api/quote-prices/update", handlers.Control.UpdateQuotePrices)
	mux.HandleFunc("POST /api/confirm-quote/{id}", handlers.Control.ConfirmQuote)
	mux.HandleFunc("GET /api/target-legs", handlers.Control.GetTargetLegs)
	mux.HandleFunc("POST /api/target-legs", handlers.Control.SetTargetLegs)

	// Stream session control.
	mux.HandleFunc("POST /api/stream/start", handlers.Stream.StartStream)
	mux.HandleFunc("POST /api/stream/stop", handlers.Stream.StopStream)

	// Dashboard event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst)(h)
	h = middleware.Auth(cfg.APIKey)(h)
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
		logger:     logger.With(slog.String("component", "server")),
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
