// SPDX-License-Identifier: MIT

// Package api exposes the coherency core over HTTP: ordered entity
// reads, mutation submission, progress-event ingest, and operation
// diagnostics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/coordinator"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/flags"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/progress"
	"github.com/Muscled-clients-repo/unpuzzle-mvp-sub005/internal/registry"
)

// Server wires the core components behind a chi router.
type Server struct {
	coord    *coordinator.Coordinator
	cache    coordinator.Cache
	registry *registry.Registry
	bus      *progress.Bus
	flags    flags.Provider
}

// Config carries API construction options.
type Config struct {
	RateLimitPerMinute int
}

// NewServer builds the HTTP server around the injected core.
func NewServer(coord *coordinator.Coordinator, cache coordinator.Cache, reg *registry.Registry, bus *progress.Bus, fl flags.Provider) *Server {
	return &Server{coord: coord, cache: cache, registry: reg, bus: bus, flags: fl}
}

// Router assembles the middleware stack and routes.
func (s *Server) Router(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Recoverer outermost, request id early, logging wraps handlers,
	// rate limit innermost of the cross-cutting stack.
	r.Use(recoverer)
	r.Use(requestID)
	r.Use(requestLogger)
	if cfg.RateLimitPerMinute > 0 {
		r.Use(rateLimit(cfg.RateLimitPerMinute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/parents/{parent}/entities", s.handleListEntities)
		r.Post("/mutations", s.handleMutate)
		r.Post("/progress", s.handleProgress)
		r.Get("/operations/{id}", s.handleGetOperation)
		r.Delete("/operations/{id}", s.handleCancelOperation)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "detail": detail})
}
