// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/events"
)

// WebSocket hands the request to the gateway of {namespace}. Authentication
// happens inside the gateway, after the upgrade.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	ns := events.Namespace(chi.URLParam(r, "namespace"))
	if !ns.Valid() {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "unknown namespace", nil)
		return
	}
	gw, ok := h.gateways.Gateway(ns)
	if !ok {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "namespace not served", nil)
		return
	}
	gw.ServeHTTP(w, r)
}
