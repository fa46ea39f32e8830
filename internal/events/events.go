// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package events defines the websocket wire protocol: namespaces, rooms and
// the closed sets of inbound and outbound events.
//
// Every frame on the wire is a JSON object:
//
//	{"event": "presenceChange", "data": {"userId": "u1", "status": "away", "timestamp": "..."}}
//
// Outbound and Inbound are sealed interfaces; only the types in this package
// implement them, so a type switch over either is exhaustive.
package events

import (
	"strings"

	"github.com/goccy/go-json"
)

// Namespace is an independently connectable channel group.
type Namespace string

const (
	NamespaceNotifications Namespace = "notifications"
	NamespacePresence      Namespace = "presence"
	NamespaceFeed          Namespace = "feed"
	NamespaceMessages      Namespace = "messages"
)

// Namespaces lists every namespace in a stable order.
var Namespaces = []Namespace{
	NamespaceNotifications,
	NamespacePresence,
	NamespaceFeed,
	NamespaceMessages,
}

// Valid reports whether n is a known namespace.
func (n Namespace) Valid() bool {
	for _, known := range Namespaces {
		if n == known {
			return true
		}
	}
	return false
}

// RoomID names a delivery group inside one namespace.
type RoomID string

const (
	userRoomPrefix         = "user:"
	conversationRoomPrefix = "conversation:"
	profileRoomPrefix      = "profile:"
)

// UserRoom is the personal room every connection of userID joins.
func UserRoom(userID string) RoomID {
	return RoomID(userRoomPrefix + userID)
}

// ConversationRoom is the room of one direct conversation.
func ConversationRoom(conversationID string) RoomID {
	return RoomID(conversationRoomPrefix + conversationID)
}

// ProfileRoom is joined by feed subscribers watching userID's activity.
func ProfileRoom(userID string) RoomID {
	return RoomID(profileRoomPrefix + userID)
}

// IsUserRoom reports whether r is a personal room.
func (r RoomID) IsUserRoom() bool {
	return strings.HasPrefix(string(r), userRoomPrefix)
}

// IsProfileRoom reports whether r is a profile room.
func (r RoomID) IsProfileRoom() bool {
	return strings.HasPrefix(string(r), profileRoomPrefix)
}

// Frame is the wire envelope shared by both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
