package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-centroids/internal/database"
	"github.com/kozaktomas/face-centroids/internal/engine"
	"github.com/kozaktomas/face-centroids/internal/web/handlers"
)

func (s *Server) setupRoutes(eng *engine.Engine, store database.CentroidStore, index handlers.IndexStats) {
	centroidsHandler := handlers.NewCentroidsHandler(eng, s.config)
	suggestionsHandler := handlers.NewSuggestionsHandler(eng, s.config)
	outliersHandler := handlers.NewOutliersHandler(eng, s.config)
	statsHandler := handlers.NewStatsHandler(store, index)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/persons/{id}/centroids", centroidsHandler.Get)
		r.Post("/persons/{id}/centroids/rebuild", centroidsHandler.Rebuild)
		r.Post("/persons/{id}/invalidate", centroidsHandler.Invalidate)
		r.Post("/persons/{id}/suggestions", suggestionsHandler.Suggest)
		r.Post("/persons/{id}/outliers", outliersHandler.Find)
		r.Get("/stats", statsHandler.Get)
	})
}
