// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/notification"
)

// IsUserOnline reports whether userID has a connection on this instance in
// any namespace.
func (e *Engine) IsUserOnline(userID string) bool {
	for _, reg := range e.registries {
		if reg.IsOnline(userID) {
			return true
		}
	}
	return false
}

// GetOnlineUserIDs returns the sorted users connected to this instance.
func (e *Engine) GetOnlineUserIDs() []string {
	return e.presence.OnlineUserIDs()
}

// GetConnectedCount returns the open connections on this instance.
func (e *Engine) GetConnectedCount() int {
	return e.hub.ConnectedCount()
}

// GetStatus resolves one user's presence across instances.
func (e *Engine) GetStatus(ctx context.Context, userID string) models.PresenceRecord {
	return e.presence.GetStatus(ctx, userID)
}

// GetPresenceBulk resolves many users, in the order given.
func (e *Engine) GetPresenceBulk(ctx context.Context, userIDs []string) []models.PresenceRecord {
	return e.presence.GetPresenceBulk(ctx, userIDs)
}

// Notify persists a notification and delivers it to the recipient's
// connections. A notification to oneself is dropped and returns nil.
func (e *Engine) Notify(ctx context.Context, p notification.NotifyParams) (*models.Notification, error) {
	return e.notifications.Notify(ctx, p)
}

// ListNotifications returns a page of userID's notifications, newest first.
func (e *Engine) ListNotifications(ctx context.Context, userID string, page, limit int) ([]models.Notification, error) {
	return e.notifications.List(ctx, userID, page, limit)
}

// UnreadCount returns how many of userID's notifications are unread.
func (e *Engine) UnreadCount(ctx context.Context, userID string) (int64, error) {
	return e.notifications.UnreadCount(ctx, userID)
}

// RecordActivity persists an activity and schedules its fan-out.
func (e *Engine) RecordActivity(ctx context.Context, actorID string, t models.ActivityType, data models.ActivityData) (*models.Activity, error) {
	return e.activity.RecordActivity(ctx, actorID, t, data)
}

// GetFeedPage returns page (from 1) of userID's following feed.
func (e *Engine) GetFeedPage(ctx context.Context, userID string, page int) (*models.FeedPage, error) {
	return e.activity.GetFeedPage(ctx, userID, page)
}

// GetDiscoverPage returns page (from 1) of activity by users userID does
// not follow.
func (e *Engine) GetDiscoverPage(ctx context.Context, userID string, page int) (*models.FeedPage, error) {
	return e.activity.GetDiscoverPage(ctx, userID, page)
}

// PutUser upserts the summary used to enrich notifications and feeds.
func (e *Engine) PutUser(ctx context.Context, u models.UserSummary) error {
	return e.directory.PutUser(ctx, u)
}

// Follow records the edge and drops the follower's cached feed.
func (e *Engine) Follow(ctx context.Context, followerID, followingID string) error {
	if followerID == followingID {
		return fmt.Errorf("%w: cannot follow yourself", ErrInvalidFollow)
	}
	if err := e.directory.Follow(ctx, followerID, followingID); err != nil {
		return err
	}
	e.invalidate(ctx, followerID)
	return nil
}

// Unfollow removes the edge and drops the follower's cached feed.
func (e *Engine) Unfollow(ctx context.Context, followerID, followingID string) error {
	if err := e.directory.Unfollow(ctx, followerID, followingID); err != nil {
		return err
	}
	e.invalidate(ctx, followerID)
	return nil
}

func (e *Engine) invalidate(ctx context.Context, userID string) {
	if err := e.activity.InvalidateFeed(ctx, userID); err != nil {
		e.logger.Warn().Err(err).Str("user_id", userID).Msg("Feed cache invalidation failed")
	}
}
