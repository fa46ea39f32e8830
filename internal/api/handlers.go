// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package api

import (
	"context"
	"time"

	"github.com/tomtom215/marquee/internal/engine"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/notification"
	"github.com/tomtom215/marquee/internal/websocket"
)

// Engine is the synchronous surface the internal routes call.
type Engine interface {
	IsUserOnline(userID string) bool
	GetOnlineUserIDs() []string
	GetConnectedCount() int
	GetStatus(ctx context.Context, userID string) models.PresenceRecord
	GetPresenceBulk(ctx context.Context, userIDs []string) []models.PresenceRecord

	Notify(ctx context.Context, p notification.NotifyParams) (*models.Notification, error)
	ListNotifications(ctx context.Context, userID string, page, limit int) ([]models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)

	RecordActivity(ctx context.Context, actorID string, t models.ActivityType, data models.ActivityData) (*models.Activity, error)
	GetFeedPage(ctx context.Context, userID string, page int) (*models.FeedPage, error)
	GetDiscoverPage(ctx context.Context, userID string, page int) (*models.FeedPage, error)

	PutUser(ctx context.Context, u models.UserSummary) error
	Follow(ctx context.Context, followerID, followingID string) error
	Unfollow(ctx context.Context, followerID, followingID string) error

	Readiness(ctx context.Context) []engine.Check
}

// Gateways resolves the websocket gateway of a namespace.
type Gateways interface {
	Gateway(ns events.Namespace) (*websocket.Gateway, bool)
}

var (
	_ Engine   = (*engine.Engine)(nil)
	_ Gateways = (*websocket.Hub)(nil)
)

// Handler contains dependencies for API handlers
//
// Handler methods are split across files:
//   - handlers_health.go: liveness and readiness
//   - handlers_websocket.go: namespace upgrade dispatch
//   - handlers_presence.go: presence queries
//   - handlers_notifications.go: notify, list, unread
//   - handlers_activity.go: record, feed, discover
//   - handlers_social.go: user summaries and follows
type Handler struct {
	engine    Engine
	gateways  Gateways
	startTime time.Time
}

// NewHandler creates the handler set.
func NewHandler(eng Engine, gateways Gateways) *Handler {
	return &Handler{
		engine:    eng,
		gateways:  gateways,
		startTime: time.Now(),
	}
}
