// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package notification persists per-recipient notifications and pushes
// them to the recipient's live connections.
//
// Persistence always happens first. Delivery is best-effort: a recipient
// with no connection on this instance reads the notification later through
// List.
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/async"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
	"github.com/tomtom215/marquee/internal/validation"
)

var (
	// ErrNotFound is returned when a notification does not exist.
	ErrNotFound = errors.New("notification: not found")

	// ErrNotOwner is returned when a user touches another user's notification.
	ErrNotOwner = errors.New("notification: not owned by user")

	// ErrInvalid wraps validation failures of NotifyParams.
	ErrInvalid = errors.New("notification: invalid parameters")
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Store persists notifications.
type Store interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	// GetNotification returns models.ErrNotFound for an unknown id.
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error)
	ListNotifications(ctx context.Context, userID string, offset, limit int) ([]models.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID string) (int64, error)
}

// UserDirectory resolves user summaries for enrichment.
type UserDirectory interface {
	GetUsers(ctx context.Context, ids []string) (map[string]models.UserSummary, error)
}

// Emitter delivers an event to a room of the notifications namespace.
type Emitter interface {
	Emit(ctx context.Context, room events.RoomID, evt events.Outbound) error
}

// NotifyParams describes one notification to create.
type NotifyParams struct {
	RecipientID string                  `json:"recipientId" validate:"required,max=64"`
	ActorID     string                  `json:"actorId" validate:"required,max=64"`
	Type        models.NotificationType `json:"type" validate:"required,notification_type"`
	ReferenceID string                  `json:"referenceId,omitempty" validate:"omitempty,max=64"`
	Message     string                  `json:"message" validate:"max=500"`
	Link        string                  `json:"link,omitempty" validate:"omitempty,max=500"`
}

// Dispatcher creates and delivers notifications.
type Dispatcher struct {
	store  Store
	users  UserDirectory
	out    Emitter
	runner async.Runner
	now    func() time.Time
	logger zerolog.Logger
}

// NewDispatcher wires a dispatcher. users may be nil, in which case
// notifications are delivered without actor details. runner schedules
// NotifyAsync; nil runs inline.
func NewDispatcher(store Store, users UserDirectory, out Emitter, runner async.Runner) *Dispatcher {
	if runner == nil {
		runner = async.Inline{}
	}
	return &Dispatcher{
		store:  store,
		users:  users,
		out:    out,
		runner: runner,
		now:    time.Now,
		logger: logging.WithComponent("notification"),
	}
}

// Notify persists a notification and pushes it to the recipient's room.
//
// Parameters:
//   - ctx: bounds persistence and enrichment
//   - p: recipient, type and content; validated with the struct's
//     validate tags
//
// Returns:
//   - *models.Notification: the stored notification, with the actor
//     summary attached when the directory knows the actor
//   - error: wraps ErrInvalid for rejected params, or the persistence error
//
// A notification to oneself returns (nil, nil) and does nothing. Delivery
// failures, including a recipient with no connection, are logged and never
// returned; the stored notification is still listed later.
//
// Thread Safety: safe for concurrent use.
//
// Example:
//
//	n, err := dispatcher.Notify(ctx, notification.NotifyParams{
//	    RecipientID: "user-2",
//	    ActorID:     "user-1",
//	    Type:        models.NotificationFollow,
//	    Message:     "ada started following you",
//	})
func (d *Dispatcher) Notify(ctx context.Context, p NotifyParams) (*models.Notification, error) {
	if p.RecipientID == p.ActorID {
		metrics.NotificationsSuppressed.Inc()
		return nil, nil
	}
	if verr := validation.ValidateStruct(p); verr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, verr)
	}

	n := &models.Notification{
		ID:          uuid.Must(uuid.NewV7()).String(),
		UserID:      p.RecipientID,
		Type:        p.Type,
		ActorID:     p.ActorID,
		ReferenceID: p.ReferenceID,
		Message:     p.Message,
		Link:        p.Link,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Type)).Inc()

	d.enrich(ctx, n)
	d.deliver(ctx, n.UserID, events.NotificationCreated{Notification: *n})
	return n, nil
}

// NotifyAsync schedules Notify on the post-commit runner. Failures are
// logged and counted there and never reach the caller.
func (d *Dispatcher) NotifyAsync(p NotifyParams) {
	d.runner.Submit("notify", func(ctx context.Context) error {
		_, err := d.Notify(ctx, p)
		return err
	})
}

// MarkAsRead marks one notification read. The user's other connections are
// told through notificationsRead.
func (d *Dispatcher) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	n, err := d.store.GetNotification(ctx, notificationID)
	if errors.Is(err, models.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	if n.UserID != userID {
		return ErrNotOwner
	}
	if !n.Read {
		if err := d.store.MarkNotificationRead(ctx, notificationID); err != nil {
			return fmt.Errorf("mark notification read: %w", err)
		}
	}

	d.deliver(ctx, userID, events.NotificationsRead{IDs: []string{notificationID}, ReadAt: d.now().UTC()})
	return nil
}

// MarkAllAsRead marks every unread notification of userID read and returns
// how many changed.
func (d *Dispatcher) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	n, err := d.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	if n > 0 {
		d.deliver(ctx, userID, events.NotificationsRead{All: true, ReadAt: d.now().UTC()})
	}
	return n, nil
}

// List returns a page of userID's notifications, newest first. Pages start
// at 1.
func (d *Dispatcher) List(ctx context.Context, userID string, page, limit int) ([]models.Notification, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, err := d.store.ListNotifications(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	d.enrichMany(ctx, items)
	return items, nil
}

// UnreadCount returns the number of unread notifications of userID.
func (d *Dispatcher) UnreadCount(ctx context.Context, userID string) (int64, error) {
	n, err := d.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func (d *Dispatcher) deliver(ctx context.Context, userID string, evt events.Outbound) {
	err := d.out.Emit(ctx, events.UserRoom(userID), evt)
	switch {
	case err == nil:
	case errors.Is(err, registry.ErrNoRecipients):
		d.logger.Debug().Str("user_id", userID).Str("event", evt.EventName()).Msg("Recipient not connected")
	default:
		metrics.RecordDeliveryFailure(string(events.NamespaceNotifications), "emit")
		d.logger.Warn().Err(err).Str("user_id", userID).Str("event", evt.EventName()).Msg("Notification delivery failed")
	}
}

func (d *Dispatcher) enrich(ctx context.Context, n *models.Notification) {
	if d.users == nil {
		return
	}
	users, err := d.users.GetUsers(ctx, []string{n.ActorID})
	if err != nil {
		d.logger.Warn().Err(err).Str("actor_id", n.ActorID).Msg("Actor lookup failed")
		return
	}
	if u, ok := users[n.ActorID]; ok {
		n.Actor = &u
	}
}

func (d *Dispatcher) enrichMany(ctx context.Context, items []models.Notification) {
	if d.users == nil || len(items) == 0 {
		return
	}
	ids := make([]string, 0, len(items))
	for _, n := range items {
		ids = append(ids, n.ActorID)
	}
	users, err := d.users.GetUsers(ctx, ids)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Actor lookup failed")
		return
	}
	for i := range items {
		if u, ok := users[items[i].ActorID]; ok {
			items[i].Actor = &u
		}
	}
}
