package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/suggestkit/rankstats/internal/stats"
)

// ServerConfig tunes the HTTP front door.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableCORS   bool
}

// DefaultServerConfig returns the defaults used by cmd/server.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Server serves the statistics query/update API.
type Server struct {
	store  *stats.Store
	router *mux.Router
	srv    *http.Server
	cfg    ServerConfig
}

// NewServer builds a server around a store.
func NewServer(store *stats.Store, cfg ServerConfig) *Server {
	s := &Server{
		store:  store,
		router: mux.NewRouter(),
		cfg:    cfg,
	}
	s.setupRoutes()

	var handler http.Handler = s.router
	if cfg.EnableCORS {
		handler = CorsMiddleware(handler)
	}
	handler = LoggingMiddleware(handler)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
