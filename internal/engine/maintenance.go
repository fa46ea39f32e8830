// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package engine

import "context"

// RefreshPresence rewrites this instance's presence records so mirror
// entries of long-lived connections do not expire.
func (e *Engine) RefreshPresence(ctx context.Context) error {
	n, err := e.presence.RefreshMirror(ctx)
	e.logger.Debug().Int("records", n).Msg("Presence mirror refreshed")
	return err
}

// SweepCaches drops expired entries from the in-memory caches.
func (e *Engine) SweepCaches(context.Context) error {
	removed := 0
	if e.pageCache != nil {
		removed += e.pageCache.Cleanup()
	}
	if e.mirrorCache != nil {
		removed += e.mirrorCache.Cleanup()
	}
	if removed > 0 {
		e.logger.Debug().Int("removed", removed).Msg("Expired cache entries removed")
	}
	return nil
}

// HasPersistentCache reports whether feed pages live in badger.
func (e *Engine) HasPersistentCache() bool {
	return e.badger != nil
}

// CollectGarbage reclaims badger value log space. It does nothing for the
// in-memory cache.
func (e *Engine) CollectGarbage(context.Context) error {
	if e.badger == nil {
		return nil
	}
	return e.badger.RunGC()
}
