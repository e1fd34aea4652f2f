package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/frame-redactor/internal/web/handlers"
	"github.com/kozaktomas/frame-redactor/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config, s.engine)
	effectsHandler := handlers.NewEffectsHandler(s.config, s.engine, s.logger)
	masksHandler := handlers.NewMasksHandler(s.logger)
	thresholdsHandler := handlers.NewThresholdsHandler(s.thresholds, s.store, s.logger)
	batchHandler := handlers.NewBatchHandler(s.config, s.engine, s.jobManager, s.logger)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Server.APIToken))

		// Batch jobs (long-running, streamed; no request timeout)
		r.Post("/batch", batchHandler.Start)
		r.Get("/batch", batchHandler.List)
		r.Get("/batch/{jobId}", batchHandler.Status)
		r.Get("/batch/{jobId}/events", batchHandler.Events)
		r.Delete("/batch/{jobId}", batchHandler.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			// Config
			r.Get("/config", configHandler.Get)
			r.Get("/config/presets/{name}", configHandler.GetPreset)
			r.Put("/config/gpu", configHandler.SetGPU)

			// Effects
			r.Get("/effects", effectsHandler.List)
			r.Get("/effects/{kind}", effectsHandler.Get)
			r.Post("/effects/apply", effectsHandler.Apply)
			r.Post("/effects/estimate", effectsHandler.Estimate)
			r.Post("/effects/thumbnail", effectsHandler.Thumbnail)
			r.Post("/effects/preview", effectsHandler.Preview)
			r.Post("/effects/compare", effectsHandler.Compare)

			// Masks
			r.Post("/masks/statistics", masksHandler.Statistics)
			r.Post("/masks/bbox", masksHandler.BoundingBoxes)
			r.Post("/masks/delete", masksHandler.Delete)
			r.Post("/masks/delete-range", masksHandler.DeleteRange)
			r.Post("/masks/clear", masksHandler.Clear)
			r.Post("/masks/merge-ids", masksHandler.MergeIDs)
			r.Post("/masks/renumber", masksHandler.Renumber)
			r.Post("/masks/morphology", masksHandler.Morphology)
			r.Post("/masks/combine", masksHandler.Combine)
			r.Post("/masks/split", masksHandler.Split)

			// Thresholds
			r.Get("/thresholds", thresholdsHandler.Get)
			r.Put("/thresholds", thresholdsHandler.Update)
			r.Put("/thresholds/detection", thresholdsHandler.SetDetection)
			r.Put("/thresholds/merge", thresholdsHandler.SetMerge)
			r.Post("/thresholds/apply", thresholdsHandler.Apply)
			r.Post("/thresholds/candidates", thresholdsHandler.Candidates)
			r.Post("/thresholds/filter-small", thresholdsHandler.FilterSmall)
			r.Get("/thresholds/history", thresholdsHandler.History)
		})
	})
}
