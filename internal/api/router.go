package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"sprout-pricing/internal/metrics"
	"sprout-pricing/internal/storage"
)

// NewRouter mounts every endpoint on a chi router.
func NewRouter(analyzer Analyzer, store storage.ObservationStore, m *metrics.Metrics, logger zerolog.Logger) http.Handler {
	h := NewHandlers(analyzer, store, m, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.With().Str("component", "http").Logger(), m))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/analytics/predictive-pricing", h.PredictivePricing)

		r.Route("/pricing", func(r chi.Router) {
			r.Post("/", h.CreatePricing)
			r.Get("/", h.ListPricing)
			r.Get("/{id}", h.GetPricing)
		})
	})

	return r
}
