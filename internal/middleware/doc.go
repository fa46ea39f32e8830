// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package middleware provides the HTTP middleware shared by the internal API
and the health endpoints.

Key Components:

  - RequestID: propagates or generates X-Request-ID and seeds the logging
    context so every log line of a request carries request_id
  - PrometheusMetrics: request counts and latency labelled by chi route
    pattern, so path parameters do not explode label cardinality
  - ServiceAuth: bearer token check guarding /internal/v1 for trusted
    backend callers

Middleware Stack:

	r.Use(middleware.RequestID)
	r.Route("/internal/v1", func(r chi.Router) {
	    r.Use(middleware.PrometheusMetrics)
	    r.Use(middleware.ServiceAuth(cfg.Auth.ServiceToken))
	    ...
	})

WebSocket routes stay outside PrometheusMetrics; the upgrade hijacks the
connection and a long-lived socket is not a request.
*/
package middleware
