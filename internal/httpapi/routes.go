package httpapi

import (
	"net/http"

	"github.com/DoyleJ11/uki-sync/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

func SetupRoutes(views ViewSource, wsHandler http.Handler, reg *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Get("/state", State(views))
	r.Get("/ws", wsHandler.ServeHTTP)
	if reg != nil {
		r.Handle("/metrics", metrics.Handler(reg))
	}
	return r
}
