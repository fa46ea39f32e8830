// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import "time"

// NotificationType is the kind of event a notification reports.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMention NotificationType = "mention"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationMention:
		return true
	}
	return false
}

// Notification is a persisted, per-recipient record. UserID is the
// recipient and never equals ActorID.
type Notification struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string           `json:"userId" gorm:"type:varchar(64);not null;index:idx_notifications_user_created,priority:1"`
	Type        NotificationType `json:"type" gorm:"type:varchar(16);not null"`
	ActorID     string           `json:"actorId" gorm:"type:varchar(64);not null"`
	ReferenceID string           `json:"referenceId,omitempty" gorm:"type:varchar(64)"`
	Message     string           `json:"message"`
	Link        string           `json:"link,omitempty"`
	Read        bool             `json:"read" gorm:"not null;default:false"`
	CreatedAt   time.Time        `json:"createdAt" gorm:"not null;index:idx_notifications_user_created,priority:2,sort:desc"`

	// Actor is filled in for delivery and listing; it is not stored.
	Actor *UserSummary `json:"actor,omitempty" gorm:"-"`
}
