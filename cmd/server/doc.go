// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Command server runs one Marquee instance.

Marquee keeps the websocket connections of a movie-review app and pushes
presence changes, notifications, feed activity and direct messages to them.
The application backend reports domain events through the internal HTTP API;
clients only ever talk to the websocket gateways.

# Process Layout

	marquee
	├── data-layer
	│   ├── async-queue
	│   ├── presence-refresher
	│   ├── cache-sweeper
	│   └── badger-gc
	├── messaging-layer
	│   └── nats-relay
	└── api-layer
	    ├── websocket-hub
	    └── http-server

Startup order:

 1. Configuration: defaults, optional config.yaml, .env, environment
 2. Logging: zerolog, JSON or console
 3. Engine: stores (memory, Postgres, MongoDB), verifier (JWT or Firebase),
    NATS connection or embedded server, relay, presence mirror, feed cache
 4. HTTP router: /healthz, /metrics, /ws/{namespace}, /internal/v1
 5. Supervisor tree

SIGINT or SIGTERM cancels the tree. The HTTP server drains for
HTTP_SHUTDOWN_TIMEOUT, after which the engine closes its stores and
connections.

# Example

Single node with in-memory stores and an embedded NATS server:

	export AUTH_MODE=jwt
	export JWT_SECRET=$(openssl rand -base64 32)
	export SERVICE_TOKEN=$(openssl rand -hex 24)
	export NATS_ENABLED=true
	export NATS_EMBEDDED=true
	./marquee

Two nodes behind a load balancer, sharing Postgres, MongoDB and NATS:

	export STORAGE_DRIVER=postgres
	export DATABASE_URL=postgres://marquee@db/marquee
	export ACTIVITY_DRIVER=mongo
	export MONGO_URI=mongodb://mongo:27017
	export NATS_ENABLED=true
	export NATS_URL=nats://nats:4222
	export PRESENCE_MIRROR=nats
	./marquee
*/
package main
