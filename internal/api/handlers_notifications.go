// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/notification"
)

// UnreadCountResponse is the body of the unread endpoint.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// CreateNotification handles POST /internal/v1/notifications. A
// notification addressed to its own actor is dropped and answered with 204.
func (h *Handler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req notification.NotifyParams
	if !decodeJSON(w, r, &req) {
		return
	}

	n, err := h.engine.Notify(r.Context(), req)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if n == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondSuccess(w, http.StatusCreated, n, start)
}

// ListNotifications handles GET /internal/v1/users/{userId}/notifications.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := PageRequest{
		UserID: chi.URLParam(r, "userId"),
		Page:   getIntParam(r, "page", 1),
		Limit:  getIntParam(r, "limit", 20),
	}
	if !validateRequest(w, &req) {
		return
	}

	items, err := h.engine.ListNotifications(r.Context(), req.UserID, req.Page, req.Limit)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, items, start)
}

// UnreadNotifications handles GET /internal/v1/users/{userId}/notifications/unread.
func (h *Handler) UnreadNotifications(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := UserPathRequest{UserID: chi.URLParam(r, "userId")}
	if !validateRequest(w, &req) {
		return
	}

	n, err := h.engine.UnreadCount(r.Context(), req.UserID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, UnreadCountResponse{Count: n}, start)
}
