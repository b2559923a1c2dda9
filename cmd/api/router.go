package main

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/mediagate/internal/access"
	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/api/middleware"
)

type routerDeps struct {
	media    *handler.MediaHandler
	download *handler.DownloadHandler
	stream   *handler.StreamHandler

	auth    access.Authenticator
	limiter access.Limiter
	checks  map[string]handler.Check

	trustProxyHeaders bool
}

func setupRouter(logger *slog.Logger, deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	if deps.trustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Metrics)

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Readiness(deps.checks, 2*time.Second))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{Limiter: deps.limiter}))

		// The handle id is the capability; no API key.
		r.Get("/stream/{handleID}", deps.stream.Serve)

		r.Group(func(r chi.Router) {
			r.Use(middleware.APIKey(deps.auth))

			r.Get("/search", deps.media.Search)
			r.Get("/slider", deps.media.Slider)
			r.Get("/details", deps.media.Details)
			r.Get("/track", deps.media.Track)
			r.Get("/resolve", deps.media.Resolve)
			r.Post("/stream", deps.media.Stream)
			r.Get("/formats", deps.media.Formats)
			r.Get("/playlist", deps.media.Playlist)
			r.Post("/download", deps.download.Download)
		})
	})

	return r
}
