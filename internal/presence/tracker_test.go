// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package presence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type stubConn struct{ id string }

func (c *stubConn) ID() string       { return c.id }
func (c *stubConn) Send([]byte) bool { return true }
func (c *stubConn) Close()           {}

type recorder struct {
	mu      sync.Mutex
	changes []events.PresenceChange
}

func (r *recorder) Broadcast(_ context.Context, evt events.Outbound) error {
	if pc, ok := evt.(events.PresenceChange); ok {
		r.mu.Lock()
		r.changes = append(r.changes, pc)
		r.mu.Unlock()
	}
	return nil
}

func (r *recorder) count(userID string, status models.PresenceStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.UserID == userID && c.Status == status {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.changes)
}

type failingMirror struct{}

var errMirrorDown = errors.New("mirror down")

func (failingMirror) Put(context.Context, models.PresenceRecord) error { return errMirrorDown }
func (failingMirror) Get(context.Context, string) (models.PresenceRecord, bool, error) {
	return models.PresenceRecord{}, false, errMirrorDown
}
func (failingMirror) GetMany(context.Context, []string) (map[string]models.PresenceRecord, error) {
	return nil, errMirrorDown
}
func (failingMirror) Delete(context.Context, string) error { return errMirrorDown }

func newTestTracker(t *testing.T, mirror Mirror, namespaces ...events.Namespace) (*Tracker, *recorder, []*registry.Registry) {
	t.Helper()
	if len(namespaces) == 0 {
		namespaces = []events.Namespace{events.NamespacePresence}
	}
	regs := make([]*registry.Registry, len(namespaces))
	sources := make([]Source, len(namespaces))
	for i, ns := range namespaces {
		regs[i] = registry.New(ns)
		sources[i] = regs[i]
	}
	rec := &recorder{}
	return NewTracker(rec, mirror, sources...), rec, regs
}

func mustRegister(t *testing.T, reg *registry.Registry, userID, connID string) {
	t.Helper()
	if err := reg.Register(userID, &stubConn{id: connID}); err != nil {
		t.Fatalf("Register(%s, %s): %v", userID, connID, err)
	}
}

func TestTracker_TwoConnectionsOfflineOnce(t *testing.T) {
	tr, rec, regs := newTestTracker(t, nil)
	reg := regs[0]

	mustRegister(t, reg, "u1", "c1")
	mustRegister(t, reg, "u1", "c2")
	if got := rec.count("u1", models.StatusOnline); got != 1 {
		t.Fatalf("online broadcasts = %d, want 1", got)
	}

	reg.Unregister("c1")
	if got := rec.count("u1", models.StatusOffline); got != 0 {
		t.Fatalf("offline after first close = %d, want 0", got)
	}
	if st := tr.GetStatus(context.Background(), "u1").Status; st != models.StatusOnline {
		t.Errorf("status with one connection left = %s, want online", st)
	}

	reg.Unregister("c2")
	reg.Unregister("c2")
	if got := rec.count("u1", models.StatusOffline); got != 1 {
		t.Errorf("offline broadcasts = %d, want exactly 1", got)
	}
	if st := tr.GetStatus(context.Background(), "u1").Status; st != models.StatusOffline {
		t.Errorf("status after all closed = %s, want offline", st)
	}
}

func TestTracker_OnlineAcrossNamespaces(t *testing.T) {
	_, rec, regs := newTestTracker(t, nil, events.NamespacePresence, events.NamespaceNotifications)

	mustRegister(t, regs[0], "u1", "p1")
	mustRegister(t, regs[1], "u1", "n1")
	if got := rec.count("u1", models.StatusOnline); got != 1 {
		t.Fatalf("online broadcasts = %d, want 1", got)
	}

	regs[0].Unregister("p1")
	if got := rec.count("u1", models.StatusOffline); got != 0 {
		t.Fatalf("offline while still on notifications = %d, want 0", got)
	}
	regs[1].Unregister("n1")
	if got := rec.count("u1", models.StatusOffline); got != 1 {
		t.Errorf("offline broadcasts = %d, want 1", got)
	}
}

func TestTracker_SetStatus(t *testing.T) {
	ctx := context.Background()
	tr, rec, regs := newTestTracker(t, nil)

	tests := []struct {
		name    string
		userID  string
		status  models.PresenceStatus
		wantErr error
	}{
		{"offline is not settable", "u1", models.StatusOffline, ErrInvalidStatus},
		{"garbage status", "u1", "busy", ErrInvalidStatus},
		{"not connected", "nobody", models.StatusAway, ErrNotConnected},
		{"away", "u1", models.StatusAway, nil},
	}

	mustRegister(t, regs[0], "u1", "c1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tr.SetStatus(ctx, tt.userID, tt.status)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetStatus() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if got := tr.GetStatus(ctx, "u1").Status; got != models.StatusAway {
		t.Errorf("status = %s, want away", got)
	}

	before := rec.total()
	if err := tr.SetStatus(ctx, "u1", models.StatusAway); err != nil {
		t.Fatalf("repeat SetStatus: %v", err)
	}
	if rec.total() != before {
		t.Error("repeating the current status must not broadcast")
	}
}

func TestTracker_MirrorTiers(t *testing.T) {
	ctx := context.Background()
	mirror := NewCacheMirror(cache.New(time.Minute), time.Minute)
	tr, _, regs := newTestTracker(t, mirror)

	// u2 is connected to another instance; only the mirror knows.
	remote := models.PresenceRecord{UserID: "u2", Status: models.StatusAway, LastSeen: time.Now()}
	if err := mirror.Put(ctx, remote); err != nil {
		t.Fatal(err)
	}
	mustRegister(t, regs[0], "u1", "c1")

	if got := tr.GetStatus(ctx, "u2").Status; got != models.StatusAway {
		t.Errorf("mirror tier: status = %s, want away", got)
	}
	if got := tr.GetStatus(ctx, "u3").Status; got != models.StatusOffline {
		t.Errorf("default tier: status = %s, want offline", got)
	}

	// Local transitions are written through.
	if rec, ok, _ := mirror.Get(ctx, "u1"); !ok || rec.Status != models.StatusOnline {
		t.Errorf("mirror for u1 = %+v, %v; want online", rec, ok)
	}

	bulk := tr.GetPresenceBulk(ctx, []string{"u3", "u1", "u2"})
	want := []models.PresenceStatus{models.StatusOffline, models.StatusOnline, models.StatusAway}
	for i, w := range want {
		if bulk[i].Status != w {
			t.Errorf("bulk[%d] = %s, want %s", i, bulk[i].Status, w)
		}
	}
}

func TestTracker_MirrorFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	tr, rec, regs := newTestTracker(t, failingMirror{})

	mustRegister(t, regs[0], "u1", "c1")
	if rec.count("u1", models.StatusOnline) != 1 {
		t.Fatal("broadcast must happen despite mirror failure")
	}
	if err := tr.SetStatus(ctx, "u1", models.StatusAway); err != nil {
		t.Errorf("SetStatus with failing mirror: %v", err)
	}
	if got := tr.GetStatus(ctx, "u9").Status; got != models.StatusOffline {
		t.Errorf("status = %s, want offline fallback", got)
	}
	bulk := tr.GetPresenceBulk(ctx, []string{"u1", "u9"})
	if bulk[0].Status != models.StatusAway || bulk[1].Status != models.StatusOffline {
		t.Errorf("bulk = %+v", bulk)
	}
}

func TestTracker_RefreshMirror(t *testing.T) {
	ctx := context.Background()
	c := cache.New(time.Minute)
	mirror := NewCacheMirror(c, time.Minute)
	tr, _, regs := newTestTracker(t, mirror)

	mustRegister(t, regs[0], "u1", "c1")
	mustRegister(t, regs[0], "u2", "c2")
	c.Clear()

	n, err := tr.RefreshMirror(ctx)
	if err != nil {
		t.Fatalf("RefreshMirror: %v", err)
	}
	if n != 2 {
		t.Errorf("refreshed %d, want 2", n)
	}
	if _, ok, _ := mirror.Get(ctx, "u2"); !ok {
		t.Error("u2 should be back in the mirror")
	}
}

func TestTracker_OfflineKeepsLastSeen(t *testing.T) {
	ctx := context.Background()
	c := cache.New(time.Minute)
	tr, _, regs := newTestTracker(t, NewCacheMirror(c, time.Minute))
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	mustRegister(t, regs[0], "u1", "c1")
	clock = clock.Add(time.Hour)
	regs[0].Unregister("c1")
	offlineAt := clock

	// The mirror entry expires; the local record still answers.
	c.Clear()
	clock = clock.Add(time.Hour)

	got := tr.GetStatus(ctx, "u1")
	if got.Status != models.StatusOffline || !got.LastSeen.Equal(offlineAt) {
		t.Errorf("GetStatus = %+v, want offline last seen %v", got, offlineAt)
	}
	bulk := tr.GetPresenceBulk(ctx, []string{"u1", "never"})
	if !bulk[0].LastSeen.Equal(offlineAt) {
		t.Errorf("bulk u1 lastSeen = %v, want %v", bulk[0].LastSeen, offlineAt)
	}
	if !bulk[1].LastSeen.IsZero() || bulk[1].Status != models.StatusOffline {
		t.Errorf("bulk for unknown user = %+v", bulk[1])
	}

	if n, err := tr.RefreshMirror(ctx); err != nil || n != 0 {
		t.Errorf("RefreshMirror() = %d, %v; offline records must not be refreshed", n, err)
	}

	mustRegister(t, regs[0], "u1", "c2")
	if got := tr.GetStatus(ctx, "u1"); got.Status != models.StatusOnline || !got.LastSeen.Equal(clock) {
		t.Errorf("after reconnect GetStatus = %+v, want online at %v", got, clock)
	}
}

func TestTracker_OnlineUserIDs(t *testing.T) {
	tr, _, regs := newTestTracker(t, nil, events.NamespacePresence, events.NamespaceFeed)
	mustRegister(t, regs[0], "b", "c1")
	mustRegister(t, regs[1], "a", "c2")
	mustRegister(t, regs[1], "b", "c3")

	got := tr.OnlineUserIDs()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("OnlineUserIDs() = %v, want [a b]", got)
	}
}

func TestTracker_ConcurrentChurnBalances(t *testing.T) {
	_, rec, regs := newTestTracker(t, nil)
	reg := regs[0]

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("c-%d-%d", i, j)
				_ = reg.Register("u1", &stubConn{id: id})
				reg.Unregister(id)
			}
		}(i)
	}
	wg.Wait()

	on := rec.count("u1", models.StatusOnline)
	off := rec.count("u1", models.StatusOffline)
	if on == 0 || on != off {
		t.Errorf("online=%d offline=%d; transitions must alternate and end offline", on, off)
	}
}
