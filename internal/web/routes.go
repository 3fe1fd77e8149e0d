package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/jasl/photo-index/internal/web/handlers"
)

func (s *Server) setupRoutes(h Handlers) {
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/search", h.Search.Search)
		r.Get("/photos", h.Photos.List)
		r.Get("/photos/{id}", h.Photos.Get)
		r.Get("/photos/{id}/thumbnail", h.Photos.Thumbnail)
		r.Get("/stats", h.Stats.Stats)
		r.Get("/categories", h.Categories.List)
	})
}
