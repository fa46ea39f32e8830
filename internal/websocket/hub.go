// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package websocket

import (
	"context"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during
	// shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Hub groups the gateways of all namespaces and closes their connections on
// shutdown.
type Hub struct {
	gateways map[events.Namespace]*Gateway
}

// NewHub indexes gateways by namespace. A later gateway for the same
// namespace replaces an earlier one.
func NewHub(gateways ...*Gateway) *Hub {
	h := &Hub{gateways: make(map[events.Namespace]*Gateway, len(gateways))}
	for _, g := range gateways {
		h.gateways[g.Namespace()] = g
	}
	return h
}

// Gateway returns the gateway of ns.
func (h *Hub) Gateway(ns events.Namespace) (*Gateway, bool) {
	g, ok := h.gateways[ns]
	return g, ok
}

// ConnectedCount returns the open connections over all namespaces.
func (h *Hub) ConnectedCount() int {
	n := 0
	for _, g := range h.gateways {
		n += g.reg.ConnectedCount()
	}
	return n
}

// Serve blocks until ctx is canceled and then closes every connection.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()

	closed := h.ConnectedCount()
	for _, g := range h.gateways {
		g.reg.CloseAll()
	}

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", closed).
		Msg("websocket hub stopped")
	return ctx.Err()
}

// String implements fmt.Stringer for suture logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}
