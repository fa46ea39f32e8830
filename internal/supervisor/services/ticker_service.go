// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
)

// TickFunc is one run of a periodic job.
type TickFunc func(ctx context.Context) error

// TickerService runs fn every interval until its context is canceled.
//
// A failed tick is logged and the next one runs on schedule. Returning the
// error would make suture restart the service, which only resets the timer.
//
// Example usage:
//
//	svc := services.NewTickerService("presence-refresher", cfg.Presence.RefreshInterval, eng.RefreshPresence)
//	tree.AddDataService(svc)
type TickerService struct {
	name     string
	interval time.Duration
	fn       TickFunc
	timeout  time.Duration
}

// NewTickerService creates a ticker. Each run is bounded by interval.
func NewTickerService(name string, interval time.Duration, fn TickFunc) *TickerService {
	return &TickerService{
		name:     name,
		interval: interval,
		fn:       fn,
		timeout:  interval,
	}
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *TickerService) tick(ctx context.Context) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := s.fn(tctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		logging.Warn().Err(err).
			Str("service", s.name).
			Dur("duration", time.Since(start)).
			Msg("Periodic job failed")
	}
}

// String names the service in supervisor logs.
func (s *TickerService) String() string {
	return s.name
}
