// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package presence derives online/away/offline status from connection
// lifecycle events and shares it with other instances through a TTL mirror.
//
// A user is online while any watched registry holds a connection for them.
// Transitions are computed under a per-user bucket lock and reconciled
// against the registries, so a user whose last connection closes produces
// exactly one offline presenceChange even when a reconnect races the close.
// Broadcasts happen after the lock is released; concurrent transitions of
// the same user may therefore reach clients out of order, and clients keep
// the record with the latest timestamp.
//
// Records are never removed. A user who goes offline keeps an offline
// record carrying the time of the transition, so lastSeen survives the
// expiry of the mirror entry.
package presence

import (
	"context"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/events"
	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
	"github.com/tomtom215/marquee/internal/models"
	"github.com/tomtom215/marquee/internal/registry"
)

const shardCount = 64

var (
	// ErrInvalidStatus is returned by SetStatus for anything but online or away.
	ErrInvalidStatus = errors.New("presence: invalid status")

	// ErrNotConnected is returned by SetStatus for a user with no connection.
	ErrNotConnected = errors.New("presence: user is not connected")
)

// Source is a connection registry whose users count as online.
type Source interface {
	IsOnline(userID string) bool
	OnlineUserIDs() []string
	Subscribe(fn func(registry.Event))
}

// Broadcaster delivers presenceChange to every presence subscriber.
type Broadcaster interface {
	Broadcast(ctx context.Context, evt events.Outbound) error
}

type bucket struct {
	mu      sync.Mutex
	records map[string]models.PresenceRecord
}

// Tracker owns the in-process presence records.
type Tracker struct {
	sources []Source
	out     Broadcaster
	mirror  Mirror
	shards  [shardCount]*bucket
	now     func() time.Time
	logger  zerolog.Logger
}

// NewTracker creates a tracker that follows every source. mirror may be nil
// for a purely local tracker.
func NewTracker(out Broadcaster, mirror Mirror, sources ...Source) *Tracker {
	t := &Tracker{
		sources: sources,
		out:     out,
		mirror:  mirror,
		now:     time.Now,
		logger:  logging.WithComponent("presence"),
	}
	for i := range t.shards {
		t.shards[i] = &bucket{records: make(map[string]models.PresenceRecord)}
	}
	for _, src := range sources {
		src.Subscribe(t.handleRegistryEvent)
	}
	return t
}

func (t *Tracker) bucket(userID string) *bucket {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return t.shards[h.Sum32()%shardCount]
}

func (t *Tracker) isOnline(userID string) bool {
	for _, src := range t.sources {
		if src.IsOnline(userID) {
			return true
		}
	}
	return false
}

func (t *Tracker) handleRegistryEvent(evt registry.Event) {
	switch evt.Kind {
	case registry.EventFirstConnection, registry.EventLastConnectionClosed:
		t.reconcile(context.Background(), evt.UserID)
	}
}

// reconcile brings the local record in line with the registries. It is the
// only place where online and offline transitions happen.
func (t *Tracker) reconcile(ctx context.Context, userID string) {
	b := t.bucket(userID)

	b.mu.Lock()
	cur, ok := b.records[userID]
	wasOnline := ok && cur.Status != models.StatusOffline
	online := t.isOnline(userID)
	var (
		change  models.PresenceRecord
		changed bool
	)
	switch {
	case online && !wasOnline:
		change = models.PresenceRecord{UserID: userID, Status: models.StatusOnline, LastSeen: t.now()}
		changed = true
	case !online && wasOnline:
		change = models.PresenceRecord{UserID: userID, Status: models.StatusOffline, LastSeen: t.now()}
		changed = true
	}
	if changed {
		b.records[userID] = change
	}
	b.mu.Unlock()

	if changed {
		t.publish(ctx, change)
	}
}

// SetStatus changes a connected user's status to online or away. Setting
// the current status again is a no-op and broadcasts nothing.
func (t *Tracker) SetStatus(ctx context.Context, userID string, status models.PresenceStatus) error {
	if !status.Settable() {
		return ErrInvalidStatus
	}

	b := t.bucket(userID)
	b.mu.Lock()
	if !t.isOnline(userID) {
		b.mu.Unlock()
		return ErrNotConnected
	}
	if cur, ok := b.records[userID]; ok && cur.Status == status {
		b.mu.Unlock()
		return nil
	}
	rec := models.PresenceRecord{UserID: userID, Status: status, LastSeen: t.now()}
	b.records[userID] = rec
	b.mu.Unlock()

	t.publish(ctx, rec)
	return nil
}

// publish mirrors rec and broadcasts it. Mirror failures are logged and
// counted; they never block the broadcast.
//
// The broadcast goes to every presence subscriber. That is the scaling
// ceiling of this design; interest-based delivery (only to users who asked
// about this one) is the replacement when it matters.
func (t *Tracker) publish(ctx context.Context, rec models.PresenceRecord) {
	metrics.PresenceTransitions.WithLabelValues(string(rec.Status)).Inc()
	t.mirrorPut(ctx, rec)

	t.logger.Debug().Str("user_id", rec.UserID).Str("status", string(rec.Status)).Msg("Presence changed")

	err := t.out.Broadcast(ctx, events.PresenceChange{
		UserID:    rec.UserID,
		Status:    rec.Status,
		Timestamp: rec.LastSeen,
	})
	if err != nil && !errors.Is(err, registry.ErrNoRecipients) {
		t.logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("Failed to broadcast presence change")
	}
}

func (t *Tracker) mirrorPut(ctx context.Context, rec models.PresenceRecord) {
	if t.mirror == nil {
		return
	}
	if err := t.mirror.Put(ctx, rec); err != nil {
		metrics.PresenceMirrorErrors.WithLabelValues("put").Inc()
		t.logger.Warn().Err(err).Str("user_id", rec.UserID).Msg("Presence mirror write failed")
	}
}

func (t *Tracker) local(userID string) (models.PresenceRecord, bool) {
	b := t.bucket(userID)
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[userID]
	return rec, ok
}

// GetStatus resolves a user's presence from three tiers.
//
// Resolution order:
//  1. Connected here: the local record (online or away)
//  2. Otherwise the mirror entry, which may come from another instance
//  3. Otherwise offline, with the lastSeen of this instance's offline
//     record when it has one
//
// Parameters:
//   - ctx: bounds the mirror read
//   - userID: the user to resolve; unknown users read as offline
//
// Returns:
//   - models.PresenceRecord: never an error; mirror failures are logged and
//     counted, and resolution falls through to the next tier
//
// Thread Safety: safe for concurrent use. The answer is a snapshot and may
// be stale by the time the caller uses it.
//
// Example:
//
//	rec := tracker.GetStatus(ctx, "user-1")
//	if rec.Status == models.StatusOffline && !rec.LastSeen.IsZero() {
//	    fmt.Println("last seen", rec.LastSeen)
//	}
func (t *Tracker) GetStatus(ctx context.Context, userID string) models.PresenceRecord {
	if t.isOnline(userID) {
		metrics.PresenceLookups.WithLabelValues("local").Inc()
		if rec, ok := t.local(userID); ok && rec.Status != models.StatusOffline {
			return rec
		}
		// Connected but not yet reconciled.
		return models.PresenceRecord{UserID: userID, Status: models.StatusOnline, LastSeen: t.now()}
	}

	if t.mirror != nil {
		rec, ok, err := t.mirror.Get(ctx, userID)
		if err != nil {
			metrics.PresenceMirrorErrors.WithLabelValues("get").Inc()
			t.logger.Warn().Err(err).Str("user_id", userID).Msg("Presence mirror read failed")
		} else if ok {
			metrics.PresenceLookups.WithLabelValues("mirror").Inc()
			return rec
		}
	}

	metrics.PresenceLookups.WithLabelValues("default").Inc()
	return t.offline(userID)
}

// offline returns the local offline record of userID, or a bare offline
// record when this instance never saw the user.
func (t *Tracker) offline(userID string) models.PresenceRecord {
	if rec, ok := t.local(userID); ok && rec.Status == models.StatusOffline {
		return rec
	}
	return models.PresenceRecord{UserID: userID, Status: models.StatusOffline}
}

// GetPresenceBulk resolves many users at once. Users connected here are
// answered locally; the rest are read from the mirror in one batch. The
// result follows the order of userIDs.
func (t *Tracker) GetPresenceBulk(ctx context.Context, userIDs []string) []models.PresenceRecord {
	out := make([]models.PresenceRecord, len(userIDs))
	resolved := make([]bool, len(userIDs))
	var missing []string

	for i, id := range userIDs {
		if !t.isOnline(id) {
			missing = append(missing, id)
			continue
		}
		rec, ok := t.local(id)
		if !ok || rec.Status == models.StatusOffline {
			rec = models.PresenceRecord{UserID: id, Status: models.StatusOnline, LastSeen: t.now()}
		}
		out[i] = rec
		resolved[i] = true
		metrics.PresenceLookups.WithLabelValues("local").Inc()
	}

	var remote map[string]models.PresenceRecord
	if len(missing) > 0 && t.mirror != nil {
		var err error
		remote, err = t.mirror.GetMany(ctx, missing)
		if err != nil {
			metrics.PresenceMirrorErrors.WithLabelValues("get_many").Inc()
			t.logger.Warn().Err(err).Int("users", len(missing)).Msg("Presence mirror batch read failed")
		}
	}

	for i, id := range userIDs {
		if resolved[i] {
			continue
		}
		if rec, ok := remote[id]; ok {
			out[i] = rec
			metrics.PresenceLookups.WithLabelValues("mirror").Inc()
			continue
		}
		out[i] = t.offline(id)
		metrics.PresenceLookups.WithLabelValues("default").Inc()
	}
	return out
}

// OnlineUserIDs returns the sorted union of users connected to any watched
// registry on this instance.
func (t *Tracker) OnlineUserIDs() []string {
	seen := make(map[string]struct{})
	for _, src := range t.sources {
		for _, id := range src.OnlineUserIDs() {
			seen[id] = struct{}{}
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RefreshMirror rewrites every online or away record so mirror entries of
// long-lived connections do not expire. Offline records are left to expire.
// It returns how many records were written.
func (t *Tracker) RefreshMirror(ctx context.Context) (int, error) {
	if t.mirror == nil {
		return 0, nil
	}

	var snapshot []models.PresenceRecord
	for _, b := range t.shards {
		b.mu.Lock()
		for _, rec := range b.records {
			if rec.Status != models.StatusOffline {
				snapshot = append(snapshot, rec)
			}
		}
		b.mu.Unlock()
	}

	written := 0
	var firstErr error
	for _, rec := range snapshot {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}
		if err := t.mirror.Put(ctx, rec); err != nil {
			metrics.PresenceMirrorErrors.WithLabelValues("refresh").Inc()
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
	}
	return written, firstErr
}
