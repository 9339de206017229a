package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/taskrelay/taskrelay/internal/journal"
	"github.com/taskrelay/taskrelay/internal/lease"
	"github.com/taskrelay/taskrelay/internal/stream"
)

// Server exposes the read-only observation API: health, held leases, run
// history, and live progress streams. Task authoring happens in the
// document store, so there are no write endpoints.
type Server struct {
	journal *journal.Journal
	leases  *lease.Manager
	streams *stream.Manager
	router  chi.Router
}

// NewServer creates the observation API server.
func NewServer(jnl *journal.Journal, leases *lease.Manager, streams *stream.Manager) *Server {
	s := &Server{
		journal: jnl,
		leases:  leases,
		streams: streams,
		router:  chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/v1/health", s.HealthCheck)
	r.Get("/api/v1/leases", s.ListLeases)
	r.Get("/api/v1/runs", s.ListRuns)
	r.Get("/api/v1/runs/{id}", s.GetRun)
	r.Get("/api/v1/runs/{id}/stream", s.StreamRun)
	r.Get("/api/v1/tasks/{taskId}/runs", s.GetTaskRuns)
}

// Router returns the chi router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}
