// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package cache

import (
	"context"
	"time"
)

// PageStore is a byte-oriented TTL key/value store for rendered feed pages.
type PageStore interface {
	// Get returns the value for key. A missing or expired key is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// DeletePrefix removes every key beginning with prefix.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// MemoryStore is a PageStore backed by Cache.
type MemoryStore struct {
	c *Cache
}

var _ PageStore = (*MemoryStore)(nil)

// NewMemoryStore wraps c. Values are copied on the way in and out so
// callers cannot mutate cached bytes.
func NewMemoryStore(c *Cache) *MemoryStore {
	return &MemoryStore{c: c}
}

// Cache returns the underlying cache.
func (s *MemoryStore) Cache() *Cache {
	return s.c
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.c.SetWithTTL(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	return s.c.DeletePrefix(prefix), nil
}
