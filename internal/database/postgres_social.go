// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/tomtom215/marquee/internal/models"
)

// PutUser inserts or replaces a user summary.
func (s *PostgresStore) PutUser(ctx context.Context, u models.UserSummary) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(&u).Error
	return translate(err, "put user "+u.ID)
}

// GetUsers returns the known users among ids, keyed by id.
func (s *PostgresStore) GetUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error) {
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var users []models.UserSummary
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate(err, "get users")
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

// Follow records that followerID follows followingID. Repeating it is a no-op.
func (s *PostgresStore) Follow(ctx context.Context, followerID, followingID string) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Follow{FollowerID: followerID, FollowingID: followingID}).Error
	return translate(err, fmt.Sprintf("follow %s -> %s", followerID, followingID))
}

// Unfollow removes the edge if present.
func (s *PostgresStore) Unfollow(ctx context.Context, followerID, followingID string) error {
	err := s.db.WithContext(ctx).
		Where("follower_id = ? AND following_id = ?", followerID, followingID).
		Delete(&models.Follow{}).Error
	return translate(err, fmt.Sprintf("unfollow %s -> %s", followerID, followingID))
}

// Followers returns the users following userID, sorted.
func (s *PostgresStore) Followers(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("following_id = ?", userID).
		Order("follower_id").
		Pluck("follower_id", &ids).Error
	if err != nil {
		return nil, translate(err, "followers of "+userID)
	}
	return ids, nil
}

// Following returns the users userID follows, sorted.
func (s *PostgresStore) Following(ctx context.Context, userID string) ([]string, error) {
	ids := []string{}
	err := s.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", userID).
		Order("following_id").
		Pluck("following_id", &ids).Error
	if err != nil {
		return nil, translate(err, "following of "+userID)
	}
	return ids, nil
}
