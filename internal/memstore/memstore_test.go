// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/models"
)

func TestFollowGraph(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, edge := range [][2]string{{"c", "a"}, {"b", "a"}, {"b", "a"}, {"a", "c"}} {
		if err := s.Follow(ctx, edge[0], edge[1]); err != nil {
			t.Fatalf("Follow: %v", err)
		}
	}

	followers, _ := s.Followers(ctx, "a")
	if want := []string{"b", "c"}; !reflect.DeepEqual(followers, want) {
		t.Errorf("Followers(a) = %v, want %v", followers, want)
	}
	following, _ := s.Following(ctx, "a")
	if want := []string{"c"}; !reflect.DeepEqual(following, want) {
		t.Errorf("Following(a) = %v, want %v", following, want)
	}

	if err := s.Unfollow(ctx, "b", "a"); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}
	followers, _ = s.Followers(ctx, "a")
	if want := []string{"c"}; !reflect.DeepEqual(followers, want) {
		t.Errorf("Followers(a) after unfollow = %v, want %v", followers, want)
	}

	none, _ := s.Followers(ctx, "nobody")
	if none == nil || len(none) != 0 {
		t.Errorf("Followers(nobody) = %#v, want empty non-nil slice", none)
	}
}

func TestGetUsers_SkipsUnknown(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.PutUser(ctx, models.UserSummary{ID: "u1", Username: "ana"})

	got, err := s.GetUsers(ctx, []string{"u1", "u2"})
	if err != nil {
		t.Fatalf("GetUsers: %v", err)
	}
	if len(got) != 1 || got["u1"].Username != "ana" {
		t.Errorf("GetUsers = %v", got)
	}
}

func TestNotifications(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i, n := range []models.Notification{
		{ID: "n1", UserID: "u1", CreatedAt: base},
		{ID: "n2", UserID: "u1", CreatedAt: base.Add(time.Minute)},
		{ID: "n3", UserID: "u1", CreatedAt: base.Add(time.Minute)},
		{ID: "n4", UserID: "u2", CreatedAt: base},
	} {
		n := n
		n.Actor = &models.UserSummary{ID: "x"}
		if err := s.CreateNotification(ctx, &n); err != nil {
			t.Fatalf("CreateNotification %d: %v", i, err)
		}
	}

	dup := models.Notification{ID: "n1", UserID: "u1"}
	if err := s.CreateNotification(ctx, &dup); !errors.Is(err, models.ErrConflict) {
		t.Errorf("duplicate create = %v, want ErrConflict", err)
	}

	stored, err := s.GetNotification(ctx, "n1")
	if err != nil {
		t.Fatalf("GetNotification: %v", err)
	}
	if stored.Actor != nil {
		t.Error("Actor enrichment was persisted")
	}
	if _, err := s.GetNotification(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetNotification(missing) = %v, want ErrNotFound", err)
	}

	list, _ := s.ListNotifications(ctx, "u1", 0, 10)
	var ids []string
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	if want := []string{"n3", "n2", "n1"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ListNotifications order = %v, want %v", ids, want)
	}
	page2, _ := s.ListNotifications(ctx, "u1", 2, 2)
	if len(page2) != 1 || page2[0].ID != "n1" {
		t.Errorf("page 2 = %v", page2)
	}
	past, _ := s.ListNotifications(ctx, "u1", 10, 2)
	if len(past) != 0 {
		t.Errorf("offset past end = %v", past)
	}

	if err := s.MarkNotificationRead(ctx, "n2"); err != nil {
		t.Fatalf("MarkNotificationRead: %v", err)
	}
	if err := s.MarkNotificationRead(ctx, "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkNotificationRead(missing) = %v", err)
	}
	if n, _ := s.CountUnreadNotifications(ctx, "u1"); n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}
	changed, _ := s.MarkAllNotificationsRead(ctx, "u1")
	if changed != 2 {
		t.Errorf("MarkAll changed %d, want 2", changed)
	}
	if n, _ := s.CountUnreadNotifications(ctx, "u2"); n != 1 {
		t.Errorf("other user's unread = %d, want 1", n)
	}
}

func TestListActivities(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for _, a := range []models.Activity{
		{ID: "a1", ActorID: "u1", Type: models.ActivityReview, CreatedAt: base},
		{ID: "a2", ActorID: "u2", Type: models.ActivityWatchlist, CreatedAt: base.Add(time.Second)},
		{ID: "a3", ActorID: "u1", Type: models.ActivityLike, CreatedAt: base.Add(2 * time.Second)},
		{ID: "a4", ActorID: "u3", Type: models.ActivityReview, CreatedAt: base.Add(2 * time.Second)},
	} {
		a := a
		if err := s.CreateActivity(ctx, &a); err != nil {
			t.Fatalf("CreateActivity: %v", err)
		}
	}

	tests := []struct {
		name string
		q    models.ActivityQuery
		want []string
	}{
		{"all newest first, id breaks ties", models.ActivityQuery{}, []string{"a4", "a3", "a2", "a1"}},
		{"by actor", models.ActivityQuery{ActorIDs: []string{"u1"}}, []string{"a3", "a1"}},
		{"exclude actor", models.ActivityQuery{ExcludeActorIDs: []string{"u1"}}, []string{"a4", "a2"}},
		{"by type", models.ActivityQuery{Types: []models.ActivityType{models.ActivityReview}}, []string{"a4", "a1"}},
		{"window", models.ActivityQuery{Offset: 1, Limit: 2}, []string{"a3", "a2"}},
		{"offset past end", models.ActivityQuery{Offset: 9}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListActivities(ctx, tt.q)
			if err != nil {
				t.Fatalf("ListActivities: %v", err)
			}
			ids := []string{}
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestFindOrCreateConversation_Concurrent(t *testing.T) {
	s := New()
	ctx := context.Background()
	participants, key := models.DirectParticipants("zed", "amy")

	const callers = 32
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		ids     = map[string]struct{}{}
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, isNew, err := s.FindOrCreateConversation(ctx, participants, key)
			if err != nil {
				t.Errorf("FindOrCreateConversation: %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			ids[c.ID] = struct{}{}
			if isNew {
				created++
			}
		}()
	}
	wg.Wait()

	if len(ids) != 1 || created != 1 || s.ConversationCount() != 1 {
		t.Fatalf("ids=%d created=%d count=%d, want 1/1/1", len(ids), created, s.ConversationCount())
	}
	for id := range ids {
		c, _ := s.GetConversation(ctx, id)
		if !reflect.DeepEqual(c.ParticipantIDs, []string{"amy", "zed"}) {
			t.Errorf("participants = %v, want sorted", c.ParticipantIDs)
		}
	}
}

func TestMessagesAndReadMarkers(t *testing.T) {
	s := New()
	ctx := context.Background()
	participants, key := models.DirectParticipants("a", "b")
	conv, _, _ := s.FindOrCreateConversation(ctx, participants, key)

	later := conv.LastMessageAt.Add(time.Minute)
	for i := 0; i < 3; i++ {
		m := &models.Message{ID: fmt.Sprintf("m%d", i), ConversationID: conv.ID, SenderID: "a", Content: "hi", CreatedAt: later}
		if err := s.CreateMessage(ctx, m); err != nil {
			t.Fatalf("CreateMessage: %v", err)
		}
	}
	if got := s.Messages(conv.ID); len(got) != 3 || got[0].ID != "m0" {
		t.Errorf("Messages = %v", got)
	}
	updated, _ := s.GetConversation(ctx, conv.ID)
	if !updated.LastMessageAt.Equal(later) {
		t.Errorf("LastMessageAt = %v, want %v", updated.LastMessageAt, later)
	}

	orphan := &models.Message{ID: "x", ConversationID: "missing"}
	if err := s.CreateMessage(ctx, orphan); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("CreateMessage(orphan) = %v, want ErrNotFound", err)
	}

	marker := models.ReadMarker{ConversationID: conv.ID, UserID: "b", ReadAt: later}
	if err := s.SetReadMarker(ctx, marker); err != nil {
		t.Fatalf("SetReadMarker: %v", err)
	}
	if got, ok := s.ReadMarker(conv.ID, "b"); !ok || !got.ReadAt.Equal(later) {
		t.Errorf("ReadMarker = %v, %v", got, ok)
	}
	if _, ok := s.ReadMarker(conv.ID, "a"); ok {
		t.Error("unexpected marker for a")
	}
}
