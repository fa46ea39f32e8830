// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/models"
)

// Outbound event names.
const (
	EventConnected              = "connected"
	EventPresenceChange         = "presenceChange"
	EventNotification           = "notification"
	EventNotificationsRead      = "notificationsRead"
	EventNewActivity            = "newActivity"
	EventNewMessage             = "newMessage"
	EventNewMessageNotification = "newMessageNotification"
	EventUserTyping             = "userTyping"
	EventMessagesRead           = "messagesRead"
	EventUsersStatus            = "usersStatus"
	EventOnlineUsers            = "onlineUsers"
	EventError                  = "error"
)

// Outbound is a server to client event.
type Outbound interface {
	EventName() string
	outbound()
}

// Connected is the first frame on every authenticated connection.
type Connected struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"userId"`
	Namespace    Namespace `json:"namespace"`
	ServerTime   time.Time `json:"serverTime"`
}

// PresenceChange announces a user's new presence status.
type PresenceChange struct {
	UserID    string                `json:"userId"`
	Status    models.PresenceStatus `json:"status"`
	Timestamp time.Time             `json:"timestamp"`
}

// NotificationCreated carries a newly persisted notification.
type NotificationCreated struct {
	models.Notification
}

// NotificationsRead mirrors read state to a user's other connections.
// All is set by markAllAsRead, in which case IDs is empty.
type NotificationsRead struct {
	IDs    []string  `json:"ids,omitempty"`
	All    bool      `json:"all,omitempty"`
	ReadAt time.Time `json:"readAt"`
}

// NewActivity pushes an enriched activity to followers.
type NewActivity struct {
	models.FeedItem
}

// NewMessage is delivered to a conversation room.
type NewMessage struct {
	models.Message
}

// NewMessageNotification is delivered to each participant's personal room so
// clients not viewing the conversation can badge it.
type NewMessageNotification struct {
	ConversationID string    `json:"conversationId"`
	MessageID      string    `json:"messageId"`
	SenderID       string    `json:"senderId"`
	Preview        string    `json:"preview"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserTyping is ephemeral and never persisted.
type UserTyping struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// MessagesRead reports that UserID has read ConversationID up to ReadAt.
type MessagesRead struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// UsersStatus answers checkUsersStatus.
type UsersStatus struct {
	Users []models.PresenceRecord `json:"users"`
}

// OnlineUsers answers getOnlineUsers.
type OnlineUsers struct {
	UserIDs []string `json:"userIds"`
}

// ErrorReply reports a rejected inbound event. The connection stays open.
type ErrorReply struct {
	Event   string `json:"event,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorReply codes.
const (
	CodeMalformedFrame   = "malformed_frame"
	CodeUnknownEvent     = "unknown_event"
	CodeValidationFailed = "validation_failed"
	CodeRateLimited      = "rate_limited"
	CodeNotFound         = "not_found"
	CodeForbidden        = "forbidden"
	CodeInvalid          = "invalid_request"
	CodeNotConnected     = "not_connected"
	CodeInternal         = "internal_error"
)

func (Connected) EventName() string              { return EventConnected }
func (PresenceChange) EventName() string         { return EventPresenceChange }
func (NotificationCreated) EventName() string    { return EventNotification }
func (NotificationsRead) EventName() string      { return EventNotificationsRead }
func (NewActivity) EventName() string            { return EventNewActivity }
func (NewMessage) EventName() string             { return EventNewMessage }
func (NewMessageNotification) EventName() string { return EventNewMessageNotification }
func (UserTyping) EventName() string             { return EventUserTyping }
func (MessagesRead) EventName() string           { return EventMessagesRead }
func (UsersStatus) EventName() string            { return EventUsersStatus }
func (OnlineUsers) EventName() string            { return EventOnlineUsers }
func (ErrorReply) EventName() string             { return EventError }

func (Connected) outbound()              {}
func (PresenceChange) outbound()         {}
func (NotificationCreated) outbound()    {}
func (NotificationsRead) outbound()      {}
func (NewActivity) outbound()            {}
func (NewMessage) outbound()             {}
func (NewMessageNotification) outbound() {}
func (UserTyping) outbound()             {}
func (MessagesRead) outbound()           {}
func (UsersStatus) outbound()            {}
func (OnlineUsers) outbound()            {}
func (ErrorReply) outbound()             {}

// Encode renders evt as a complete wire frame.
func Encode(evt Outbound) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	return EncodeRaw(evt.EventName(), data)
}

// EncodeRaw wraps already-encoded event data in a frame.
func EncodeRaw(event string, data json.RawMessage) ([]byte, error) {
	frame, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode frame %s: %w", event, err)
	}
	return frame, nil
}
