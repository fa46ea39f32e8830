// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import (
	"context"
	"errors"

	"github.com/tomtom215/marquee/internal/activity"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/messaging"
	"github.com/tomtom215/marquee/internal/notification"
	"github.com/tomtom215/marquee/internal/presence"
	"github.com/tomtom215/marquee/internal/registry"
	"github.com/tomtom215/marquee/internal/websocket"
)

var _ websocket.Handler = (*Engine)(nil)

// HandleInbound runs one client event. Queries return their answer; the
// rest return nil on success. Failures come back as events.ErrorReply.
func (e *Engine) HandleInbound(ctx context.Context, s websocket.Session, evt events.Inbound) events.Outbound {
	reply, err := e.handle(ctx, s, evt)
	if err != nil {
		return e.errorReply(ctx, evt, err)
	}
	return reply
}

func (e *Engine) handle(ctx context.Context, s websocket.Session, evt events.Inbound) (events.Outbound, error) {
	switch ev := evt.(type) {
	// presence
	case *events.UpdateStatus:
		return nil, e.presence.SetStatus(ctx, s.UserID, ev.Status)
	case *events.CheckUsersStatus:
		return events.UsersStatus{Users: e.presence.GetPresenceBulk(ctx, ev.UserIDs)}, nil
	case *events.GetOnlineUsers:
		return events.OnlineUsers{UserIDs: e.presence.OnlineUserIDs()}, nil

	// notifications
	case *events.MarkNotificationRead:
		return nil, e.notifications.MarkAsRead(ctx, s.UserID, ev.NotificationID)
	case *events.MarkAllNotificationsRead:
		_, err := e.notifications.MarkAllAsRead(ctx, s.UserID)
		return nil, err

	// feed
	case *events.Subscribe:
		return nil, e.registries[events.NamespaceFeed].JoinRoom(s.ConnID, events.ProfileRoom(ev.UserID))
	case *events.Unsubscribe:
		return nil, e.unsubscribe(s.ConnID, ev.UserID)

	// messages
	case *events.JoinConversation:
		return nil, e.messaging.JoinConversation(ctx, s.ConnID, s.UserID, ev.ConversationID)
	case *events.LeaveConversation:
		return nil, e.messaging.LeaveConversation(ctx, s.ConnID, s.UserID, ev.ConversationID)
	case *events.SendMessage:
		_, err := e.messaging.SendMessage(ctx, s.ConnID, s.UserID, ev.RecipientID, ev.Content)
		return nil, err
	case *events.Typing:
		return nil, e.messaging.Typing(ctx, s.UserID, ev.ConversationID, ev.IsTyping)
	case *events.MarkConversationRead:
		return nil, e.messaging.MarkAsRead(ctx, s.UserID, ev.ConversationID)
	}
	return nil, events.ErrUnknownEvent
}

// unsubscribe leaves one profile room, or all of them when userID is empty.
func (e *Engine) unsubscribe(connID, userID string) error {
	feed := e.registries[events.NamespaceFeed]
	if userID != "" {
		return feed.LeaveRoom(connID, events.ProfileRoom(userID))
	}
	for _, room := range feed.RoomsOf(connID) {
		if room.IsProfileRoom() {
			if err := feed.LeaveRoom(connID, room); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) errorReply(ctx context.Context, evt events.Inbound, err error) events.ErrorReply {
	reply := events.ErrorReply{Event: evt.EventName(), Message: err.Error()}

	switch {
	case errors.Is(err, notification.ErrNotFound), errors.Is(err, messaging.ErrNotFound):
		reply.Code = events.CodeNotFound
	case errors.Is(err, notification.ErrNotOwner), errors.Is(err, messaging.ErrNotParticipant):
		reply.Code = events.CodeForbidden
	case errors.Is(err, presence.ErrInvalidStatus),
		errors.Is(err, messaging.ErrInvalid),
		errors.Is(err, notification.ErrInvalid),
		errors.Is(err, activity.ErrInvalid):
		reply.Code = events.CodeInvalid
	case errors.Is(err, presence.ErrNotConnected), errors.Is(err, registry.ErrUnknownConnection):
		reply.Code = events.CodeNotConnected
	case errors.Is(err, events.ErrUnknownEvent):
		reply.Code = events.CodeUnknownEvent
	default:
		logging.Ctx(ctx).Error().Err(err).Str("event", evt.EventName()).Msg("Inbound event failed")
		reply.Code = events.CodeInternal
		reply.Message = "internal error"
	}
	return reply
}
