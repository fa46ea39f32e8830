// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tomtom215/marquee/internal/models"
)

// FindOrCreateConversation returns the conversation with key, creating it
// when absent. Concurrent callers race on the unique participant_key index;
// exactly one insert wins and the rest read the winner's row.
func (s *PostgresStore) FindOrCreateConversation(ctx context.Context, participantIDs []string, key string) (*models.Conversation, bool, error) {
	now := time.Now().UTC()
	conv := models.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ParticipantKey: key,
		ParticipantIDs: append([]string(nil), participantIDs...),
		CreatedAt:      now,
		LastMessageAt:  now,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "participant_key"}},
			DoNothing: true,
		}).
		Create(&conv)
	if res.Error != nil {
		return nil, false, translate(res.Error, "create conversation "+key)
	}
	if res.RowsAffected == 1 {
		return &conv, true, nil
	}

	var existing models.Conversation
	if err := s.db.WithContext(ctx).First(&existing, "participant_key = ?", key).Error; err != nil {
		return nil, false, translate(err, "conversation "+key)
	}
	return &existing, false, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var c models.Conversation
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, "conversation "+id)
	}
	return &c, nil
}

// CreateMessage inserts m and advances the conversation's LastMessageAt in
// one transaction.
func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Conversation{}).
			Where("id = ?", m.ConversationID).
			Update("last_message_at", gorm.Expr("GREATEST(last_message_at, ?)", m.CreatedAt))
		if res.Error != nil {
			return translate(res.Error, "touch conversation "+m.ConversationID)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("conversation %s: %w", m.ConversationID, models.ErrNotFound)
		}
		return translate(tx.Create(m).Error, "create message "+m.ID)
	})
}

// SetReadMarker upserts the (conversation, user) read position.
func (s *PostgresStore) SetReadMarker(ctx context.Context, marker models.ReadMarker) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"read_at"}),
		}).
		Create(&marker).Error
	return translate(err, fmt.Sprintf("read marker %s/%s", marker.ConversationID, marker.UserID))
}
