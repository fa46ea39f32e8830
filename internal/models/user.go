// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package models defines the domain types shared by the Marquee engine,
// its stores and its wire events.
package models

import "time"

// UserSummary is the denormalized view of a user attached to notifications
// and feed items. The backend upserts rows through the internal API whenever
// a profile changes.
type UserSummary struct {
	ID          string `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Username    string `json:"username" gorm:"uniqueIndex;not null"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// TableName maps UserSummary onto the shared users table.
func (UserSummary) TableName() string {
	return "users"
}

// Follow is a directed edge: FollowerID follows FollowingID.
type Follow struct {
	ID          uint      `json:"-" gorm:"primaryKey"`
	FollowerID  string    `json:"followerId" gorm:"type:varchar(64);not null;uniqueIndex:idx_follow_pair,priority:1"`
	FollowingID string    `json:"followingId" gorm:"type:varchar(64);not null;uniqueIndex:idx_follow_pair,priority:2;index"`
	CreatedAt   time.Time `json:"createdAt"`
}
