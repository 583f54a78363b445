package http

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suggestkit/rankstats/internal/adapter/http/handlers"
)

func (s *Server) setupRoutes() {
	h := handlers.NewHandlers(s.store)
	api := s.router.PathPrefix("/v1").Subrouter()

	api.HandleFunc("/use-count", h.HandleUseCount).Methods("POST")
	api.HandleFunc("/recency", h.HandleRecency).Methods("POST")
	api.HandleFunc("/values/{context}", h.HandleValues).Methods("GET")
	api.HandleFunc("/inc", h.HandleInc).Methods("POST")
	api.HandleFunc("/flush", h.HandleFlush).Methods("POST")
	api.HandleFunc("/stats", h.HandleStats).Methods("GET")

	s.router.HandleFunc("/health", h.HandleHealth).Methods("GET")

	// Prometheus scrape endpoint
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}
