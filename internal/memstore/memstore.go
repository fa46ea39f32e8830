// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package memstore is an in-memory implementation of every Marquee store.
// It backs tests and single-node development (storage.driver=memory).
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/marquee/internal/models"
)

// Store holds users, follows, notifications, activities and conversations
// behind one mutex.
type Store struct {
	mu            sync.RWMutex
	users         map[string]models.UserSummary
	followers     map[string]map[string]struct{} // followed -> followers
	following     map[string]map[string]struct{} // follower -> followed
	notifications map[string]*models.Notification
	activities    []models.Activity
	conversations map[string]*models.Conversation
	convByKey     map[string]string
	messages      map[string][]models.Message
	readMarkers   map[string]models.ReadMarker
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]models.UserSummary),
		followers:     make(map[string]map[string]struct{}),
		following:     make(map[string]map[string]struct{}),
		notifications: make(map[string]*models.Notification),
		conversations: make(map[string]*models.Conversation),
		convByKey:     make(map[string]string),
		messages:      make(map[string][]models.Message),
		readMarkers:   make(map[string]models.ReadMarker),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Users

// PutUser inserts or replaces a user summary.
func (s *Store) PutUser(_ context.Context, u models.UserSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]models.UserSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

// Social graph

// Follow records that followerID follows followingID. Repeating it is a no-op.
func (s *Store) Follow(_ context.Context, followerID, followingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	addEdge(s.followers, followingID, followerID)
	addEdge(s.following, followerID, followingID)
	return nil
}

// Unfollow removes the edge if present.
func (s *Store) Unfollow(_ context.Context, followerID, followingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.followers[followingID], followerID)
	delete(s.following[followerID], followingID)
	return nil
}

func addEdge(m map[string]map[string]struct{}, from, to string) {
	set, ok := m[from]
	if !ok {
		set = make(map[string]struct{})
		m[from] = set
	}
	set[to] = struct{}{}
}

func (s *Store) Followers(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.followers[userID]), nil
}

func (s *Store) Following(_ context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.following[userID]), nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Notifications

func (s *Store) CreateNotification(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.notifications[n.ID]; ok {
		return fmt.Errorf("notification %s: %w", n.ID, models.ErrConflict)
	}
	stored := *n
	stored.Actor = nil
	s.notifications[n.ID] = &stored
	return nil
}

func (s *Store) GetNotification(_ context.Context, id string) (*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]
	if !ok {
		return nil, fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	cp := *n
	return &cp, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notifications[id]
	if !ok {
		return fmt.Errorf("notification %s: %w", id, models.ErrNotFound)
	}
	n.Read = true
	return nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			n.Read = true
			changed++
		}
	}
	return changed, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string, offset, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	var all []models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			all = append(all, *n)
		}
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	return window(all, offset, limit), nil
}

func (s *Store) CountUnreadNotifications(_ context.Context, userID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, item := range s.notifications {
		if item.UserID == userID && !item.Read {
			n++
		}
	}
	return n, nil
}

// NotificationCount returns the number of stored notifications.
func (s *Store) NotificationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}

// Activities

func (s *Store) CreateActivity(_ context.Context, a *models.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, *a)
	return nil
}

func (s *Store) ListActivities(_ context.Context, q models.ActivityQuery) ([]models.Activity, error) {
	include := toSet(q.ActorIDs)
	exclude := toSet(q.ExcludeActorIDs)
	types := make(map[models.ActivityType]struct{}, len(q.Types))
	for _, t := range q.Types {
		types[t] = struct{}{}
	}

	s.mu.RLock()
	var matched []models.Activity
	for _, a := range s.activities {
		if len(include) > 0 {
			if _, ok := include[a.ActorID]; !ok {
				continue
			}
		}
		if _, ok := exclude[a.ActorID]; ok {
			continue
		}
		if len(types) > 0 {
			if _, ok := types[a.Type]; !ok {
				continue
			}
		}
		matched = append(matched, a)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Before(&matched[j]) })
	return window(matched, q.Offset, q.Limit), nil
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// Conversations

// FindOrCreateConversation returns the conversation with key, creating it
// when absent. created reports whether this call created it.
func (s *Store) FindOrCreateConversation(_ context.Context, participantIDs []string, key string) (*models.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.convByKey[key]; ok {
		cp := *s.conversations[id]
		return &cp, false, nil
	}
	now := time.Now().UTC()
	c := &models.Conversation{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ParticipantKey: key,
		ParticipantIDs: append([]string(nil), participantIDs...),
		CreatedAt:      now,
		LastMessageAt:  now,
	}
	s.conversations[c.ID] = c
	s.convByKey[key] = c.ID
	cp := *c
	return &cp, true, nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, models.ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

// CreateMessage appends m and moves the conversation's LastMessageAt.
func (s *Store) CreateMessage(_ context.Context, m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[m.ConversationID]
	if !ok {
		return fmt.Errorf("conversation %s: %w", m.ConversationID, models.ErrNotFound)
	}
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], *m)
	if m.CreatedAt.After(c.LastMessageAt) {
		c.LastMessageAt = m.CreatedAt
	}
	return nil
}

func (s *Store) SetReadMarker(_ context.Context, marker models.ReadMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readMarkers[marker.ConversationID+"/"+marker.UserID] = marker
	return nil
}

// ConversationCount returns the number of stored conversations.
func (s *Store) ConversationCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// Messages returns a copy of a conversation's messages in insertion order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages[conversationID]...)
}

// ReadMarker returns the marker of userID in a conversation.
func (s *Store) ReadMarker(conversationID, userID string) (models.ReadMarker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.readMarkers[conversationID+"/"+userID]
	return m, ok
}
