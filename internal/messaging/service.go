// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package messaging delivers direct messages between two users.
//
// A pair of users shares exactly one conversation, keyed by their sorted
// IDs. Messages go to the conversation room (connections that joined it)
// and a newMessageNotification goes to every participant's personal room so
// clients outside the conversation view can badge it.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
)

const (
	maxContentLength = 4000
	previewLength    = 100
)

var (
	// ErrNotParticipant is returned when a user acts on a conversation they
	// are not part of.
	ErrNotParticipant = errors.New("messaging: not a participant")

	// ErrNotFound is returned for an unknown conversation.
	ErrNotFound = errors.New("messaging: conversation not found")

	// ErrInvalid wraps rejected message input.
	ErrInvalid = errors.New("messaging: invalid message")
)

// Store persists conversations and messages.
type Store interface {
	// FindOrCreateConversation returns the conversation with key, creating
	// it atomically when absent. created reports whether this call did.
	FindOrCreateConversation(ctx context.Context, participantIDs []string, key string) (conv *models.Conversation, created bool, err error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateMessage(ctx context.Context, m *models.Message) error
	SetReadMarker(ctx context.Context, marker models.ReadMarker) error
}

// Rooms joins and leaves local connections of the messages namespace.
type Rooms interface {
	JoinRoom(connID string, room events.RoomID) error
	LeaveRoom(connID string, room events.RoomID) error
}

// Emitter delivers an event to a room of the messages namespace.
type Emitter interface {
	Emit(ctx context.Context, room events.RoomID, evt events.Outbound) error
}

// Service sends and delivers direct messages.
type Service struct {
	store  Store
	rooms  Rooms
	out    Emitter
	now    func() time.Time
	logger zerolog.Logger
}

// NewService wires a Service.
func NewService(store Store, rooms Rooms, out Emitter) *Service {
	return &Service{
		store:  store,
		rooms:  rooms,
		out:    out,
		now:    time.Now,
		logger: logging.WithComponent("messaging"),
	}
}

// SendMessage stores a message from senderID to recipientID in their direct
// conversation, creating it on first contact. When connID is set, that
// connection joins the conversation room before delivery.
func (s *Service) SendMessage(ctx context.Context, connID, senderID, recipientID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	switch {
	case senderID == "" || recipientID == "":
		return nil, fmt.Errorf("%w: sender and recipient are required", ErrInvalid)
	case senderID == recipientID:
		return nil, fmt.Errorf("%w: cannot message yourself", ErrInvalid)
	case content == "":
		return nil, fmt.Errorf("%w: content is empty", ErrInvalid)
	case utf8.RuneCountInString(content) > maxContentLength:
		return nil, fmt.Errorf("%w: content exceeds %d characters", ErrInvalid, maxContentLength)
	}

	participants, key := models.DirectParticipants(senderID, recipientID)
	conv, created, err := s.store.FindOrCreateConversation(ctx, participants, key)
	if err != nil {
		return nil, fmt.Errorf("find or create conversation: %w", err)
	}
	if created {
		metrics.ConversationsCreated.Inc()
	}
	if !conv.HasParticipant(senderID) || !conv.HasParticipant(recipientID) {
		s.logger.Error().Str("conversation_id", conv.ID).Str("sender_id", senderID).
			Msg("Direct conversation key resolved to a foreign conversation")
		return nil, ErrNotParticipant
	}

	msg := &models.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	metrics.MessagesSent.Inc()

	if connID != "" {
		if err := s.rooms.JoinRoom(connID, events.ConversationRoom(conv.ID)); err != nil {
			s.logger.Debug().Err(err).Str("conn_id", connID).Msg("Sender connection could not join conversation")
		}
	}

	s.deliver(ctx, conv, msg)
	return msg, nil
}

// Deliver pushes an already persisted message to the conversation room and
// to every participant's personal room.
func (s *Service) Deliver(ctx context.Context, conversationID string, msg *models.Message) error {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return err
	}
	s.deliver(ctx, conv, msg)
	return nil
}

func (s *Service) deliver(ctx context.Context, conv *models.Conversation, msg *models.Message) {
	s.emit(ctx, events.ConversationRoom(conv.ID), events.NewMessage{Message: *msg})

	note := events.NewMessageNotification{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		Preview:        preview(msg.Content),
		CreatedAt:      msg.CreatedAt,
	}
	for _, p := range conv.ParticipantIDs {
		s.emit(ctx, events.UserRoom(p), note)
	}
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	r := []rune(content)
	return string(r[:previewLength]) + "…"
}

// JoinConversation adds a connection of userID to the conversation room.
func (s *Service) JoinConversation(ctx context.Context, connID, userID, conversationID string) error {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.rooms.JoinRoom(connID, events.ConversationRoom(conversationID))
}

// LeaveConversation removes a connection of userID from the conversation room.
func (s *Service) LeaveConversation(ctx context.Context, connID, userID, conversationID string) error {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return err
	}
	return s.rooms.LeaveRoom(connID, events.ConversationRoom(conversationID))
}

// Typing relays an ephemeral typing indicator to the conversation room.
// Nothing is stored.
func (s *Service) Typing(ctx context.Context, userID, conversationID string, isTyping bool) error {
	if _, err := s.participant(ctx, userID, conversationID); err != nil {
		return err
	}
	s.emit(ctx, events.ConversationRoom(conversationID), events.UserTyping{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return nil
}

// MarkAsRead stores userID's read marker and announces it to the
// conversation room and the participants.
func (s *Service) MarkAsRead(ctx context.Context, userID, conversationID string) error {
	conv, err := s.participant(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	readAt := s.now().UTC()
	marker := models.ReadMarker{ConversationID: conversationID, UserID: userID, ReadAt: readAt}
	if err := s.store.SetReadMarker(ctx, marker); err != nil {
		return fmt.Errorf("persist read marker: %w", err)
	}

	evt := events.MessagesRead{ConversationID: conversationID, UserID: userID, ReadAt: readAt}
	s.emit(ctx, events.ConversationRoom(conversationID), evt)
	for _, p := range conv.ParticipantIDs {
		s.emit(ctx, events.UserRoom(p), evt)
	}
	return nil
}

func (s *Service) conversation(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) participant(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return conv, nil
}

func (s *Service) emit(ctx context.Context, room events.RoomID, evt events.Outbound) {
	err := s.out.Emit(ctx, room, evt)
	if err == nil || errors.Is(err, registry.ErrNoRecipients) {
		return
	}
	metrics.RecordDeliveryFailure(string(events.NamespaceMessages), "emit")
	s.logger.Warn().Err(err).Str("room", string(room)).Str("event", evt.EventName()).Msg("Message delivery failed")
}
