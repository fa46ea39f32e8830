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

// PutUser handles PUT /internal/v1/users/{userId}.
func (h *Handler) PutUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	req := PutUserRequest{UserID: chi.URLParam(r, "userId")}
	if !decodeJSON(w, r, &req) {
		return
	}

	u := models.UserSummary{
		ID:          req.UserID,
		Username:    req.Username,
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
	}
	if err := h.engine.PutUser(r.Context(), u); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, u, start)
}

// Follow handles PUT /internal/v1/users/{userId}/following/{targetId}.
// Repeating it is a no-op.
func (h *Handler) Follow(w http.ResponseWriter, r *http.Request) {
	req, ok := followRequest(w, r)
	if !ok {
		return
	}
	if err := h.engine.Follow(r.Context(), req.UserID, req.TargetID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unfollow handles DELETE /internal/v1/users/{userId}/following/{targetId}.
func (h *Handler) Unfollow(w http.ResponseWriter, r *http.Request) {
	req, ok := followRequest(w, r)
	if !ok {
		return
	}
	if err := h.engine.Unfollow(r.Context(), req.UserID, req.TargetID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func followRequest(w http.ResponseWriter, r *http.Request) (FollowRequest, bool) {
	req := FollowRequest{
		UserID:   chi.URLParam(r, "userId"),
		TargetID: chi.URLParam(r, "targetId"),
	}
	return req, validateRequest(w, &req)
}
