// Package server assembles the HTTP and WebSocket API of the
// marketplace client.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nftbay/marketd/internal/server/handler"
	"github.com/nftbay/marketd/internal/server/middleware"
	"github.com/nftbay/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Activity
// may be nil when no activity store is configured.
type Handlers struct {
	Health   *handler.HealthHandler
	Catalog  *handler.CatalogHandler
	Tx       *handler.TxHandler
	Activity *handler.ActivityHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the
// middleware chain (logging, auth, CORS) applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required for the probe path itself; the auth
	// middleware wraps everything, so a configured API key applies here
	// too).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Marketplace overview and refresh.
	mux.HandleFunc("GET /api/market", handlers.Catalog.GetMarket)
	mux.HandleFunc("POST /api/market/refresh", handlers.Catalog.RefreshMarket)

	// Catalog reads.
	mux.HandleFunc("GET /api/listings", handlers.Catalog.ListCatalog)
	mux.HandleFunc("GET /api/listings/{id}", handlers.Catalog.GetListing)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Catalog.GetAuction)
	mux.HandleFunc("GET /api/offers/{id}", handlers.Catalog.GetOffer)
	mux.HandleFunc("GET /api/users/{addr}/listings", handlers.Catalog.ListUserListings)
	mux.HandleFunc("GET /api/nfts/{contract}/{tokenId}/offers", handlers.Catalog.ListNFTOffers)

	// Transaction lifecycle.
	mux.HandleFunc("GET /api/tx", handlers.Tx.ListStatuses)
	mux.HandleFunc("GET /api/tx/{kind}", handlers.Tx.GetStatus)
	mux.HandleFunc("POST /api/tx/{kind}", handlers.Tx.Invoke)
	mux.HandleFunc("POST /api/tx/{kind}/reset", handlers.Tx.Reset)

	// Write history.
	if handlers.Activity != nil {
		mux.HandleFunc("GET /api/activity", handlers.Activity.ListActivity)
		mux.HandleFunc("POST /api/activity/archive", handlers.Activity.ArchiveActivity)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
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
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
