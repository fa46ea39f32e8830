// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/marquee/internal/config"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/middleware"
)

// Router wires handlers to routes.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
	serviceToken  string
}

// NewRouter creates a router from the security and auth sections of cfg.
func NewRouter(cfg *config.Config, handler *Handler) *Router {
	return &Router{
		handler:       handler,
		chiMiddleware: NewChiMiddlewareFromConfig(cfg.Security),
		serviceToken:  cfg.Auth.ServiceToken,
	}
}

// SetupChi configures all HTTP routes.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	r.Route("/healthz", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Use(APISecurityHeaders())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Handle("/metrics", promhttp.Handler())

	// No PrometheusMetrics here; the upgrade hijacks the connection.
	r.With(router.chiMiddleware.RateLimitWebSocket()).Get("/ws/{namespace}", router.handler.WebSocket)

	if router.serviceToken == "" {
		logging.Warn().Msg("auth.service_token is empty, internal API disabled")
	} else {
		r.Route("/internal/v1", func(r chi.Router) {
			r.Use(middleware.PrometheusMetrics)
			r.Use(router.chiMiddleware.RateLimit())
			r.Use(APISecurityHeaders())
			r.Use(middleware.ServiceAuth(router.serviceToken))
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Route("/presence", func(r chi.Router) {
				r.Get("/online", router.handler.OnlineUsers)
				r.Get("/connections", router.handler.Connections)
				r.Post("/bulk", router.handler.PresenceBulk)
				r.Get("/{userId}", router.handler.UserPresence)
			})

			r.Post("/notifications", router.handler.CreateNotification)
			r.Post("/activities", router.handler.RecordActivity)

			r.Route("/users/{userId}", func(r chi.Router) {
				r.Put("/", router.handler.PutUser)
				r.Get("/notifications", router.handler.ListNotifications)
				r.Get("/notifications/unread", router.handler.UnreadNotifications)
				r.Get("/feed", router.handler.Feed)
				r.Get("/discover", router.handler.Discover)
				r.Put("/following/{targetId}", router.handler.Follow)
				r.Delete("/following/{targetId}", router.handler.Unfollow)
			})
		})
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed", nil)
	})

	return r
}
