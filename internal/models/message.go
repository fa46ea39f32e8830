// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package models

import (
	"sort"
	"strconv"
	"time"
)

// Conversation is a direct message thread. ParticipantKey encodes the sorted
// participant pair (see DirectParticipants) and is unique, so a pair of users
// has at most one direct conversation.
type Conversation struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ParticipantKey string    `json:"-" gorm:"type:varchar(160);not null;uniqueIndex"`
	ParticipantIDs []string  `json:"participantIds" gorm:"serializer:json;type:text;not null"`
	CreatedAt      time.Time `json:"createdAt"`
	LastMessageAt  time.Time `json:"lastMessageAt"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.ParticipantIDs {
		if p == userID {
			return true
		}
	}
	return false
}

// DirectParticipants returns the sorted pair and its key. The key prefixes
// the first id with its byte length, so ids containing the separator cannot
// make two different pairs share a key.
func DirectParticipants(a, b string) ([]string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair, strconv.Itoa(len(pair[0])) + ":" + pair[0] + ":" + pair[1]
}

// Message is one direct message.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConversationID string    `json:"conversationId" gorm:"type:varchar(36);not null;index:idx_messages_conv_created,priority:1"`
	SenderID       string    `json:"senderId" gorm:"type:varchar(64);not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index:idx_messages_conv_created,priority:2"`
}

// ReadMarker records when a participant last read a conversation.
type ReadMarker struct {
	ConversationID string    `json:"conversationId" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"userId" gorm:"primaryKey;type:varchar(64)"`
	ReadAt         time.Time `json:"readAt"`
}
