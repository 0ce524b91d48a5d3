// Package api exposes the engine over HTTP: execution submission and
// inspection, workflow validation, live event streaming, result export, and
// registry introspection.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flowline/flowline/internal/engine"
	"github.com/flowline/flowline/internal/repository"
)

type Server struct {
	engine *engine.Engine
	store  *repository.ExecutionStore
}

func NewServer(eng *engine.Engine, store *repository.ExecutionStore) *Server {
	return &Server{
		engine: eng,
		store:  store,
	}
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}))
	r.Route("/api", func(r chi.Router) {
		r.Route("/executions", func(r chi.Router) {
			r.Post("/", s.startExecution)
			r.Get("/", s.listExecutions)
			r.Get("/{id}", s.getExecution)
			r.Post("/{id}/stop", s.stopExecution)
			r.Get("/{id}/events", s.streamExecutionEvents)
			r.Get("/{id}/export", s.exportExecution)
		})
		r.Post("/workflows/validate", s.validateWorkflow)
		r.Get("/capabilities", s.listCapabilities)
		r.Get("/types", s.listTypes)
		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", s.getCacheStats)
			r.Post("/cleanup", s.cleanupCache)
		})
	})
	r.Get("/healthz", s.health)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
