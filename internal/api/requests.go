// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import "github.com/tomtom215/marquee/internal/models"

// Request structs carry go-playground/validator tags and are checked before
// any engine call. Path parameters are copied in so one struct validates the
// whole request.

// UserPathRequest is any route keyed by a single {userId}.
type UserPathRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

// PresenceBulkRequest is the body of POST /presence/bulk.
type PresenceBulkRequest struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=200,dive,required,max=64"`
}

// PageRequest is a 1-based page of a user-scoped list.
type PageRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
	Page   int    `json:"page" validate:"min=1,max=10000"`
	Limit  int    `json:"limit" validate:"min=1,max=100"`
}

// FeedPageRequest selects a feed page. The page size is feed.page_size.
type FeedPageRequest struct {
	UserID string `json:"userId" validate:"required,max=64"`
	Page   int    `json:"page" validate:"min=1,max=10000"`
}

// RecordActivityRequest is the body of POST /activities. Type-specific
// payload rules are enforced by the activity service.
type RecordActivityRequest struct {
	ActorID string              `json:"actorId" validate:"required,max=64"`
	Type    models.ActivityType `json:"type" validate:"required,activity_type"`
	Data    models.ActivityData `json:"data"`
}

// PutUserRequest is the body of PUT /users/{userId}.
type PutUserRequest struct {
	UserID      string `json:"-" validate:"required,max=64"`
	Username    string `json:"username" validate:"required,max=64"`
	DisplayName string `json:"displayName" validate:"omitempty,max=128"`
	AvatarURL   string `json:"avatarUrl" validate:"omitempty,url,max=500"`
}

// FollowRequest is PUT or DELETE /users/{userId}/following/{targetId}.
type FollowRequest struct {
	UserID   string `json:"userId" validate:"required,max=64"`
	TargetID string `json:"targetId" validate:"required,max=64,nefield=UserID"`
}
