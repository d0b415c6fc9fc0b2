// Package api serves the parse and activity endpoints over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/activity-cli/internal/config"
	"github.com/sells-group/activity-cli/internal/store"
)

// NewRouter builds the HTTP handler. /health and /metrics are always open;
// the /api routes sit behind basic auth when credentials are configured.
func NewRouter(cfg config.ServerConfig, svc Service, st store.Store) http.Handler {
	h := NewHandler(svc, st)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.BasicAuthUsername != "" {
			r.Use(middleware.BasicAuth("activity", map[string]string{
				cfg.BasicAuthUsername: cfg.BasicAuthPassword,
			}))
		}
		r.Post("/parse/preview", h.preview)
		r.Post("/parse/apply", h.apply)
		r.Get("/activities", h.listActivities)
		r.Get("/activities/export", h.exportActivities)
	})

	return r
}
