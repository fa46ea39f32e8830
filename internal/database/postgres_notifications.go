// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"

	"github.com/tomtom215/marquee/internal/models"
)

// CreateNotification inserts n. A duplicate id is models.ErrConflict.
func (s *PostgresStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return translate(s.db.WithContext(ctx).Create(n).Error, "create notification "+n.ID)
}

// GetNotification returns models.ErrNotFound for an unknown id.
func (s *PostgresStore) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.WithContext(ctx).First(&n, "id = ?", id).Error; err != nil {
		return nil, translate(err, "notification "+id)
	}
	return &n, nil
}

// MarkNotificationRead sets read on one notification.
func (s *PostgresStore) MarkNotificationRead(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ?", id).
		Update("read", true)
	if res.Error != nil {
		return translate(res.Error, "mark notification "+id)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead marks every unread notification of userID and
// returns how many changed.
func (s *PostgresStore) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	if res.Error != nil {
		return 0, translate(res.Error, "mark all notifications of "+userID)
	}
	return res.RowsAffected, nil
}

// ListNotifications returns a page of userID's notifications, newest first.
func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, offset, limit int) ([]models.Notification, error) {
	out := []models.Notification{}
	q := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, translate(err, "list notifications of "+userID)
	}
	return out, nil
}

func (s *PostgresStore) CountUnreadNotifications(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&n).Error
	if err != nil {
		return 0, translate(err, "count unread of "+userID)
	}
	return n, nil
}
