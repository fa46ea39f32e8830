// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/marquee/internal/models"
)

// RecordActivity handles POST /internal/v1/activities. The activity is
// persisted before the response; fan-out runs after it.
func (h *Handler) RecordActivity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req RecordActivityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := h.engine.RecordActivity(r.Context(), req.ActorID, req.Type, req.Data)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusCreated, a, start)
}

// Feed handles GET /internal/v1/users/{userId}/feed.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	h.feedPage(w, r, h.engine.GetFeedPage)
}

// Discover handles GET /internal/v1/users/{userId}/discover.
func (h *Handler) Discover(w http.ResponseWriter, r *http.Request) {
	h.feedPage(w, r, h.engine.GetDiscoverPage)
}

type pageFunc func(ctx context.Context, userID string, page int) (*models.FeedPage, error)

func (h *Handler) feedPage(w http.ResponseWriter, r *http.Request, get pageFunc) {
	start := time.Now()
	req := FeedPageRequest{
		UserID: chi.URLParam(r, "userId"),
		Page:   getIntParam(r, "page", 1),
	}
	if !validateRequest(w, &req) {
		return
	}

	page, err := get(r.Context(), req.UserID, req.Page)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondSuccess(w, http.StatusOK, page, start)
}
