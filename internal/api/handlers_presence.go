// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/models"
)

// OnlineUsersResponse lists users connected to this instance.
type OnlineUsersResponse struct {
	UserIDs []string `json:"userIds"`
	Count   int      `json:"count"`
}

// ConnectionsResponse is the open connection count of this instance.
type ConnectionsResponse struct {
	Count int `json:"count"`
}

// UserPresenceResponse pairs the resolved record with whether the user has
// a connection on this instance.
type UserPresenceResponse struct {
	models.PresenceRecord
	ConnectedHere bool `json:"connectedHere"`
}

// OnlineUsers handles GET /internal/v1/presence/online.
func (h *Handler) OnlineUsers(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ids := h.engine.GetOnlineUserIDs()
	respondSuccess(w, http.StatusOK, OnlineUsersResponse{UserIDs: ids, Count: len(ids)}, start)
}

// Connections handles GET /internal/v1/presence/connections.
func (h *Handler) Connections(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, ConnectionsResponse{Count: h.engine.GetConnectedCount()}, start)
}

// UserPresence handles GET /internal/v1/presence/{userId}.
func (h *Handler) UserPresence(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := UserPathRequest{UserID: chi.URLParam(r, "userId")}
	if !validateRequest(w, &req) {
		return
	}
	respondSuccess(w, http.StatusOK, UserPresenceResponse{
		PresenceRecord: h.engine.GetStatus(r.Context(), req.UserID),
		ConnectedHere:  h.engine.IsUserOnline(req.UserID),
	}, start)
}

// PresenceBulk handles POST /internal/v1/presence/bulk. Results follow the
// order of the requested ids.
func (h *Handler) PresenceBulk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req PresenceBulkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondSuccess(w, http.StatusOK, h.engine.GetPresenceBulk(r.Context(), req.UserIDs), start)
}
