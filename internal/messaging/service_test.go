// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package messaging

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/memstore"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type nopConn struct{ id string }

func (c *nopConn) ID() string       { return c.id }
func (c *nopConn) Send([]byte) bool { return true }
func (c *nopConn) Close()           {}

type sent struct {
	room  events.RoomID
	event string
}

type recordingEmitter struct {
	mu  sync.Mutex
	out []sent
}

func (r *recordingEmitter) Emit(_ context.Context, room events.RoomID, evt events.Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.out = append(r.out, sent{room, evt.EventName()})
	return nil
}

func (r *recordingEmitter) to(room events.RoomID, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.out {
		if s.room == room && s.event == event {
			n++
		}
	}
	return n
}

func newTestService(t *testing.T) (*Service, *memstore.Store, *registry.Registry, *recordingEmitter) {
	t.Helper()
	store := memstore.New()
	reg := registry.New(events.NamespaceMessages)
	out := &recordingEmitter{}
	return NewService(store, reg, out), store, reg, out
}

func TestSendMessage_Validation(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	tests := []struct {
		name      string
		sender    string
		recipient string
		content   string
	}{
		{"self", "amy", "amy", "hi"},
		{"no recipient", "amy", "", "hi"},
		{"blank", "amy", "zed", "   "},
		{"too long", "amy", "zed", strings.Repeat("x", maxContentLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.SendMessage(context.Background(), "", tt.sender, tt.recipient, tt.content)
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("SendMessage() error = %v, want ErrInvalid", err)
			}
		})
	}
	if store.ConversationCount() != 0 {
		t.Error("rejected messages must not create conversations")
	}
}

func TestSendMessage_SingleConversation(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := "zed", "amy"
			if i%2 == 0 {
				from, to = to, from
			}
			if _, err := svc.SendMessage(ctx, "", from, to, "hello"); err != nil {
				t.Errorf("SendMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if n := store.ConversationCount(); n != 1 {
		t.Fatalf("conversations = %d, want 1", n)
	}

	msg, err := svc.SendMessage(ctx, "", "amy", "zed", "last")
	if err != nil {
		t.Fatal(err)
	}
	conv, err := store.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.ParticipantIDs) != 2 || conv.ParticipantIDs[0] != "amy" || conv.ParticipantIDs[1] != "zed" {
		t.Errorf("participants = %v, want [amy zed]", conv.ParticipantIDs)
	}
	if got := len(store.Messages(conv.ID)); got != 21 {
		t.Errorf("messages = %d, want 21", got)
	}
}

func TestSendMessage_SeparatorInUserIDs(t *testing.T) {
	svc, store, _, out := newTestService(t)
	ctx := context.Background()

	first, err := svc.SendMessage(ctx, "", "a:b", "c", "to c")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	second, err := svc.SendMessage(ctx, "", "a", "b:c", "to b:c")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if first.ConversationID == second.ConversationID {
		t.Fatalf("distinct pairs share conversation %s", first.ConversationID)
	}
	if n := store.ConversationCount(); n != 2 {
		t.Errorf("conversations = %d, want 2", n)
	}
	conv, err := store.GetConversation(ctx, second.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(conv.ParticipantIDs, []string{"a", "b:c"}) {
		t.Errorf("participants = %v, want [a b:c]", conv.ParticipantIDs)
	}
	if n := out.to(events.UserRoom("c"), events.EventNewMessageNotification); n != 1 {
		t.Errorf("c received %d messages, want 1", n)
	}
}

func TestSendMessage_RejectsForeignConversation(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	_, key := models.DirectParticipants("amy", "zed")
	foreign, _, err := store.FindOrCreateConversation(ctx, []string{"bob", "eve"}, key)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.SendMessage(ctx, "", "amy", "zed", "hi"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("SendMessage() error = %v, want ErrNotParticipant", err)
	}
	if got := store.Messages(foreign.ID); len(got) != 0 {
		t.Errorf("message stored in a conversation the sender is not part of: %v", got)
	}
}

func TestSendMessage_DeliversAndJoins(t *testing.T) {
	svc, _, reg, out := newTestService(t)
	ctx := context.Background()

	if err := reg.Register("amy", &nopConn{id: "c-amy"}); err != nil {
		t.Fatal(err)
	}

	msg, err := svc.SendMessage(ctx, "c-amy", "amy", "zed", "  see Heat tonight?  ")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Content != "see Heat tonight?" {
		t.Errorf("content = %q, want trimmed", msg.Content)
	}

	room := events.ConversationRoom(msg.ConversationID)
	if reg.MemberCount(room) != 1 {
		t.Error("sender connection should have joined the conversation room")
	}
	if out.to(room, events.EventNewMessage) != 1 {
		t.Error("newMessage should go to the conversation room")
	}
	for _, u := range []string{"amy", "zed"} {
		if out.to(events.UserRoom(u), events.EventNewMessageNotification) != 1 {
			t.Errorf("%s should get newMessageNotification", u)
		}
	}
}

func TestConversationAccess(t *testing.T) {
	svc, _, reg, out := newTestService(t)
	ctx := context.Background()

	msg, err := svc.SendMessage(ctx, "", "amy", "zed", "hi")
	if err != nil {
		t.Fatal(err)
	}
	convID := msg.ConversationID
	_ = reg.Register("zed", &nopConn{id: "c-zed"})
	_ = reg.Register("eve", &nopConn{id: "c-eve"})

	tests := []struct {
		name    string
		op      func() error
		wantErr error
	}{
		{"participant joins", func() error { return svc.JoinConversation(ctx, "c-zed", "zed", convID) }, nil},
		{"outsider joins", func() error { return svc.JoinConversation(ctx, "c-eve", "eve", convID) }, ErrNotParticipant},
		{"unknown conversation", func() error { return svc.JoinConversation(ctx, "c-zed", "zed", "nope") }, ErrNotFound},
		{"outsider typing", func() error { return svc.Typing(ctx, "eve", convID, true) }, ErrNotParticipant},
		{"participant typing", func() error { return svc.Typing(ctx, "zed", convID, true) }, nil},
		{"outsider marks read", func() error { return svc.MarkAsRead(ctx, "eve", convID) }, ErrNotParticipant},
		{"participant marks read", func() error { return svc.MarkAsRead(ctx, "zed", convID) }, nil},
		{"participant leaves", func() error { return svc.LeaveConversation(ctx, "c-zed", "zed", convID) }, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.op(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	room := events.ConversationRoom(convID)
	if out.to(room, events.EventUserTyping) != 1 {
		t.Error("one typing event expected")
	}
	if out.to(room, events.EventMessagesRead) != 1 || out.to(events.UserRoom("amy"), events.EventMessagesRead) != 1 {
		t.Error("messagesRead should reach the room and each participant")
	}
	if reg.MemberCount(room) != 0 {
		t.Error("zed left the room")
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", previewLength+10)
	if got := []rune(preview(long)); len(got) != previewLength+1 {
		t.Errorf("preview has %d runes, want %d", len(got), previewLength+1)
	}
	if preview("short") != "short" {
		t.Error("short content should be returned as is")
	}
}
