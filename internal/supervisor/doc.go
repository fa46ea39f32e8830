// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package supervisor runs the long-lived services of a Marquee instance under a
suture v4 supervisor tree.

# Layout

	marquee
	├── data-layer
	│   ├── async-queue
	│   ├── presence-refresher
	│   ├── cache-sweeper
	│   └── badger-gc (feed.cache=badger only)
	├── messaging-layer
	│   └── nats-relay
	└── api-layer
	    ├── websocket-hub
	    └── http-server

Each layer is its own supervisor. A service that keeps failing pushes only
its layer into backoff; websocket connections stay up while the relay
subscriber reconnects, for example.

# Logging

Supervisor events (service panics, backoff, restarts) go through sutureslog.
The slog logger passed to NewSupervisorTree is normally
logging.NewSlogLogger, which forwards to the process zerolog logger.

# Shutdown

Canceling the context passed to Serve stops every layer. Services that do
not return within TreeConfig.ShutdownTimeout are listed by
UnstoppedServiceReport.

See also package services for the wrappers that adapt the HTTP server and
periodic jobs to suture.Service.
*/
package supervisor
