// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package events

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/validation"
)

// Inbound is a client to server event. Each type belongs to exactly one
// namespace.
type Inbound interface {
	EventName() string
	Namespace() Namespace
	inbound()
}

var (
	// ErrUnknownEvent is returned for event names the namespace does not accept.
	ErrUnknownEvent = errors.New("unknown event")

	// ErrMalformedFrame is returned when a frame or its data cannot be decoded.
	ErrMalformedFrame = errors.New("malformed frame")
)

// Presence namespace.

// UpdateStatus requests an explicit online or away status.
type UpdateStatus struct {
	Status models.PresenceStatus `json:"status" validate:"required,presence_status"`
}

// CheckUsersStatus asks for the presence of specific users.
type CheckUsersStatus struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,max=200,dive,required,max=64"`
}

// GetOnlineUsers asks for every user currently online.
type GetOnlineUsers struct{}

// Notifications namespace.

// MarkNotificationRead marks one notification read.
type MarkNotificationRead struct {
	NotificationID string `json:"notificationId" validate:"required,max=64"`
}

// MarkAllNotificationsRead marks all of the caller's notifications read.
type MarkAllNotificationsRead struct{}

// Feed namespace.

// Subscribe starts live delivery of UserID's activity.
type Subscribe struct {
	UserID string `json:"userId" validate:"required,max=64"`
}

// Unsubscribe stops live delivery of UserID's activity, or of every watched
// user when UserID is empty.
type Unsubscribe struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=64"`
}

// Messages namespace.

// JoinConversation joins the conversation room.
type JoinConversation struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

// LeaveConversation leaves the conversation room.
type LeaveConversation struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

// SendMessage sends a direct message, creating the conversation if needed.
type SendMessage struct {
	RecipientID string `json:"recipientId" validate:"required,max=64"`
	Content     string `json:"content" validate:"required,max=4000"`
}

// Typing toggles the typing indicator in a conversation.
type Typing struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkConversationRead marks a conversation read by the caller.
type MarkConversationRead struct {
	ConversationID string `json:"conversationId" validate:"required,max=64"`
}

// Inbound event names. markAsRead is reused by two namespaces.
const (
	EventUpdateStatus      = "updateStatus"
	EventCheckUsersStatus  = "checkUsersStatus"
	EventGetOnlineUsers    = "getOnlineUsers"
	EventMarkAsRead        = "markAsRead"
	EventMarkAllAsRead     = "markAllAsRead"
	EventSubscribe         = "subscribe"
	EventUnsubscribe       = "unsubscribe"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
)

func (UpdateStatus) EventName() string             { return EventUpdateStatus }
func (CheckUsersStatus) EventName() string         { return EventCheckUsersStatus }
func (GetOnlineUsers) EventName() string           { return EventGetOnlineUsers }
func (MarkNotificationRead) EventName() string     { return EventMarkAsRead }
func (MarkAllNotificationsRead) EventName() string { return EventMarkAllAsRead }
func (Subscribe) EventName() string                { return EventSubscribe }
func (Unsubscribe) EventName() string              { return EventUnsubscribe }
func (JoinConversation) EventName() string         { return EventJoinConversation }
func (LeaveConversation) EventName() string        { return EventLeaveConversation }
func (SendMessage) EventName() string              { return EventSendMessage }
func (Typing) EventName() string                   { return EventTyping }
func (MarkConversationRead) EventName() string     { return EventMarkAsRead }

func (UpdateStatus) Namespace() Namespace             { return NamespacePresence }
func (CheckUsersStatus) Namespace() Namespace         { return NamespacePresence }
func (GetOnlineUsers) Namespace() Namespace           { return NamespacePresence }
func (MarkNotificationRead) Namespace() Namespace     { return NamespaceNotifications }
func (MarkAllNotificationsRead) Namespace() Namespace { return NamespaceNotifications }
func (Subscribe) Namespace() Namespace                { return NamespaceFeed }
func (Unsubscribe) Namespace() Namespace              { return NamespaceFeed }
func (JoinConversation) Namespace() Namespace         { return NamespaceMessages }
func (LeaveConversation) Namespace() Namespace        { return NamespaceMessages }
func (SendMessage) Namespace() Namespace              { return NamespaceMessages }
func (Typing) Namespace() Namespace                   { return NamespaceMessages }
func (MarkConversationRead) Namespace() Namespace     { return NamespaceMessages }

func (UpdateStatus) inbound()             {}
func (CheckUsersStatus) inbound()         {}
func (GetOnlineUsers) inbound()           {}
func (MarkNotificationRead) inbound()     {}
func (MarkAllNotificationsRead) inbound() {}
func (Subscribe) inbound()                {}
func (Unsubscribe) inbound()              {}
func (JoinConversation) inbound()         {}
func (LeaveConversation) inbound()        {}
func (SendMessage) inbound()              {}
func (Typing) inbound()                   {}
func (MarkConversationRead) inbound()     {}

// inboundTable maps namespace and event name to a constructor.
var inboundTable = map[Namespace]map[string]func() Inbound{
	NamespacePresence: {
		EventUpdateStatus:     func() Inbound { return &UpdateStatus{} },
		EventCheckUsersStatus: func() Inbound { return &CheckUsersStatus{} },
		EventGetOnlineUsers:   func() Inbound { return &GetOnlineUsers{} },
	},
	NamespaceNotifications: {
		EventMarkAsRead:    func() Inbound { return &MarkNotificationRead{} },
		EventMarkAllAsRead: func() Inbound { return &MarkAllNotificationsRead{} },
	},
	NamespaceFeed: {
		EventSubscribe:   func() Inbound { return &Subscribe{} },
		EventUnsubscribe: func() Inbound { return &Unsubscribe{} },
	},
	NamespaceMessages: {
		EventJoinConversation:  func() Inbound { return &JoinConversation{} },
		EventLeaveConversation: func() Inbound { return &LeaveConversation{} },
		EventSendMessage:       func() Inbound { return &SendMessage{} },
		EventTyping:            func() Inbound { return &Typing{} },
		EventMarkAsRead:        func() Inbound { return &MarkConversationRead{} },
	},
}

// ParseInbound decodes and validates one client frame received on ns.
// Events that belong to another namespace yield ErrUnknownEvent. The
// returned value is always a pointer to one of this package's event types.
func ParseInbound(ns Namespace, raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}

	ctor, ok := inboundTable[ns][frame.Event]
	if !ok {
		return nil, fmt.Errorf("%w: %q on namespace %s", ErrUnknownEvent, frame.Event, ns)
	}

	evt := ctor()
	if len(frame.Data) > 0 && string(frame.Data) != "null" {
		if err := json.Unmarshal(frame.Data, evt); err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", ErrMalformedFrame, frame.Event, err)
		}
	}
	if verr := validation.ValidateStruct(evt); verr != nil {
		return nil, verr
	}
	return evt, nil
}
