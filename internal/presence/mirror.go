// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package presence

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/marquee/internal/cache"
	"github.com/tomtom215/marquee/internal/models"
)

// Mirror is a shared store of presence records whose entries expire after a
// TTL, so a crashed instance's users eventually read as offline.
type Mirror interface {
	Put(ctx context.Context, rec models.PresenceRecord) error
	// Get returns (record, true, nil) for a present unexpired entry and
	// (zero, false, nil) for a miss.
	Get(ctx context.Context, userID string) (models.PresenceRecord, bool, error)
	// GetMany returns the records found among userIDs, keyed by user ID.
	GetMany(ctx context.Context, userIDs []string) (map[string]models.PresenceRecord, error)
	Delete(ctx context.Context, userID string) error
}

const mirrorKeyPrefix = "presence:"

// CacheMirror keeps presence records in an in-process TTL cache. It is the
// single-node mirror: nothing is shared between instances.
type CacheMirror struct {
	c   *cache.Cache
	ttl time.Duration
}

var _ Mirror = (*CacheMirror)(nil)

// NewCacheMirror stores records in c with the given TTL.
func NewCacheMirror(c *cache.Cache, ttl time.Duration) *CacheMirror {
	return &CacheMirror{c: c, ttl: ttl}
}

func (m *CacheMirror) Put(_ context.Context, rec models.PresenceRecord) error {
	m.c.SetWithTTL(mirrorKeyPrefix+rec.UserID, rec, m.ttl)
	return nil
}

func (m *CacheMirror) Get(_ context.Context, userID string) (models.PresenceRecord, bool, error) {
	v, ok := m.c.Get(mirrorKeyPrefix + userID)
	if !ok {
		return models.PresenceRecord{}, false, nil
	}
	rec, ok := v.(models.PresenceRecord)
	return rec, ok, nil
}

func (m *CacheMirror) GetMany(ctx context.Context, userIDs []string) (map[string]models.PresenceRecord, error) {
	out := make(map[string]models.PresenceRecord, len(userIDs))
	for _, id := range userIDs {
		if rec, ok, _ := m.Get(ctx, id); ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (m *CacheMirror) Delete(_ context.Context, userID string) error {
	m.c.Delete(mirrorKeyPrefix + userID)
	return nil
}

// BreakerMirror routes every mirror call through a circuit breaker. While
// the breaker is open calls fail fast with gobreaker.ErrOpenState, which the
// tracker logs and treats like any other mirror failure.
type BreakerMirror struct {
	inner Mirror
	cb    *gobreaker.CircuitBreaker[interface{}]
}

var _ Mirror = (*BreakerMirror)(nil)

// NewBreakerMirror wraps inner with cb.
func NewBreakerMirror(inner Mirror, cb *gobreaker.CircuitBreaker[interface{}]) *BreakerMirror {
	return &BreakerMirror{inner: inner, cb: cb}
}

func (m *BreakerMirror) Put(ctx context.Context, rec models.PresenceRecord) error {
	_, err := m.cb.Execute(func() (interface{}, error) {
		return nil, m.inner.Put(ctx, rec)
	})
	return err
}

func (m *BreakerMirror) Get(ctx context.Context, userID string) (models.PresenceRecord, bool, error) {
	type result struct {
		rec models.PresenceRecord
		ok  bool
	}
	v, err := m.cb.Execute(func() (interface{}, error) {
		rec, ok, err := m.inner.Get(ctx, userID)
		return result{rec, ok}, err
	})
	if err != nil {
		return models.PresenceRecord{}, false, err
	}
	r := v.(result)
	return r.rec, r.ok, nil
}

func (m *BreakerMirror) GetMany(ctx context.Context, userIDs []string) (map[string]models.PresenceRecord, error) {
	v, err := m.cb.Execute(func() (interface{}, error) {
		return m.inner.GetMany(ctx, userIDs)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]models.PresenceRecord), nil
}

func (m *BreakerMirror) Delete(ctx context.Context, userID string) error {
	_, err := m.cb.Execute(func() (interface{}, error) {
		return nil, m.inner.Delete(ctx, userID)
	})
	return err
}
