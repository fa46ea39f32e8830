// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package api provides the HTTP surface of a Marquee instance.

Routes:

	GET  /ws/{namespace}                      websocket upgrade (notifications, presence, feed, messages)
	GET  /healthz/live                        process liveness
	GET  /healthz/ready                       readiness of NATS, stores and the relay
	GET  /metrics                             Prometheus exposition

	/internal/v1 (service token required):
	GET  /presence/online                     users connected to this instance
	GET  /presence/connections                open connection count
	GET  /presence/{userId}                   one user's presence
	POST /presence/bulk                       many users' presence
	POST /notifications                       create and deliver a notification
	POST /activities                          record an activity and fan it out
	PUT  /users/{userId}                      upsert a user summary
	GET  /users/{userId}/notifications        list, newest first
	GET  /users/{userId}/notifications/unread unread count
	GET  /users/{userId}/feed                 following feed page
	GET  /users/{userId}/discover             discovery page
	PUT  /users/{userId}/following/{targetId} follow
	DELETE /users/{userId}/following/{targetId} unfollow

The internal routes are only mounted when auth.service_token is set. They
are called by the application backend, never by browsers, and answer with
the models.APIResponse envelope.

Middleware order: request ID, real IP, panic recovery, CORS, then per-group
rate limiting, security headers and Prometheus instrumentation.
*/
package api
