// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

/*
Package websocket is the transport of the four namespaces (notifications,
presence, feed, messages).

Each namespace is served by one Gateway mounted at /ws/{namespace}. A
Gateway upgrades the request, verifies the bearer credential once, registers
the connection with the namespace's registry and then runs two goroutines
per connection:

	          ┌─────────────┐
	socket ──►│  readPump   │── rate limit ── ParseInbound ── Handler
	          └─────────────┘                                   │
	          ┌─────────────┐                                   ▼
	socket ◄──│  writePump  │◄── send buffer ◄── registry.Emit / reply
	          └─────────────┘

readPump decodes and dispatches frames one at a time, so a connection's
inbound events are handled in arrival order. writePump drains the send
buffer and keeps the connection alive with pings.

Authentication:

The credential is taken from the Authorization header, the token query
parameter, or, when neither is present, an auth frame that must be the first
frame and arrive within the handshake timeout:

	{"event": "auth", "data": {"token": "..."}}

A missing or invalid credential closes the socket with 1008 (policy
violation) before anything is registered.

Backpressure:

Client.Send never blocks. When the send buffer is full the registry treats the
connection as gone: it is unregistered and closed.
*/
package websocket
