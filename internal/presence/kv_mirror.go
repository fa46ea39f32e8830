// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package presence

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/marquee/internal/models"
)

// kvReadConcurrency bounds parallel gets in GetMany.
const kvReadConcurrency = 16

// KVMirror stores presence records in a NATS JetStream key/value bucket
// whose max age is the mirror TTL. Every instance connected to the same
// NATS cluster sees the same bucket.
type KVMirror struct {
	kv jetstream.KeyValue
}

var _ Mirror = (*KVMirror)(nil)

// NewKVMirror creates the bucket if needed, or updates its TTL.
func NewKVMirror(ctx context.Context, js jetstream.JetStream, bucket string, ttl time.Duration) (*KVMirror, error) {
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "User presence records",
		TTL:         ttl,
		History:     1,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create presence bucket %s: %w", bucket, err)
	}
	return &KVMirror{kv: kv}, nil
}

// kvKey encodes userID into the KV key alphabet. User IDs from identity
// providers may contain characters KV keys reject.
func kvKey(userID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(userID))
}

func (m *KVMirror) Put(ctx context.Context, rec models.PresenceRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}
	if _, err := m.kv.Put(ctx, kvKey(rec.UserID), data); err != nil {
		return fmt.Errorf("put presence %s: %w", rec.UserID, err)
	}
	return nil
}

func (m *KVMirror) Get(ctx context.Context, userID string) (models.PresenceRecord, bool, error) {
	entry, err := m.kv.Get(ctx, kvKey(userID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return models.PresenceRecord{}, false, nil
	}
	if err != nil {
		return models.PresenceRecord{}, false, fmt.Errorf("get presence %s: %w", userID, err)
	}

	var rec models.PresenceRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return models.PresenceRecord{}, false, fmt.Errorf("decode presence %s: %w", userID, err)
	}
	return rec, true, nil
}

// GetMany issues bounded parallel gets. The first hard error cancels the
// rest and is returned.
func (m *KVMirror) GetMany(ctx context.Context, userIDs []string) (map[string]models.PresenceRecord, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]models.PresenceRecord, len(userIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(kvReadConcurrency)
	for _, id := range userIDs {
		g.Go(func() error {
			rec, ok, err := m.Get(gctx, id)
			if err != nil || !ok {
				return err
			}
			mu.Lock()
			out[id] = rec
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *KVMirror) Delete(ctx context.Context, userID string) error {
	err := m.kv.Delete(ctx, kvKey(userID))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete presence %s: %w", userID, err)
	}
	return nil
}
