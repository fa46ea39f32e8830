// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var _ suture.Service = (*TickerService)(nil)

func TestTickerService(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"successful ticks", nil},
		{"failing ticks keep running", errors.New("kv unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var runs atomic.Int32
			svc := NewTickerService("job", 10*time.Millisecond, func(ctx context.Context) error {
				if _, ok := ctx.Deadline(); !ok {
					t.Error("tick context has no deadline")
				}
				runs.Add(1)
				return tt.err
			})

			ctx, cancel := context.WithCancel(context.Background())
			errCh := make(chan error, 1)
			go func() { errCh <- svc.Serve(ctx) }()

			deadline := time.Now().Add(2 * time.Second)
			for runs.Load() < 3 {
				if time.Now().After(deadline) {
					t.Fatalf("ran %d times, want at least 3", runs.Load())
				}
				time.Sleep(5 * time.Millisecond)
			}
			cancel()

			select {
			case err := <-errCh:
				if !errors.Is(err, context.Canceled) {
					t.Errorf("Serve() = %v, want context.Canceled", err)
				}
			case <-time.After(time.Second):
				t.Fatal("Serve did not return")
			}
		})
	}
}

func TestTickerService_String(t *testing.T) {
	svc := NewTickerService("cache-sweeper", time.Minute, func(context.Context) error { return nil })
	if svc.String() != "cache-sweeper" {
		t.Errorf("String() = %q", svc.String())
	}
}
