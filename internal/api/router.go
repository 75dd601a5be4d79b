// Regsync - HR Registry Synchronization Service
// Copyright 2026 D. Vicanovic (dvicanovic)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dvicanovic/regsync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full HTTP routing tree. filesRoot, when non-empty,
// is served under /files/ for direct document downloads.
func (h *Handler) NewRouter(filesRoot string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   h.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			h.cfg.Server.RateLimitReqs,
			h.cfg.Server.RateLimitWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(rateLimitExceeded),
		))
		r.Use(prometheusMetrics)

		r.Get("/health", h.Health)

		r.Route("/sync", func(r chi.Router) {
			r.Post("/jobs", h.CreateSyncJob)
			r.Get("/jobs/{id}", h.GetSyncJob)
		})

		r.Route("/documents", func(r chi.Router) {
			r.Post("/fetch", h.FetchDocuments)
			r.Post("/retry", h.RetryDocuments)
		})

		r.Get("/ws", h.WebSocket)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if filesRoot != "" {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(filesRoot)))
		r.Get("/files/*", fs.ServeHTTP)
	}

	return r
}
