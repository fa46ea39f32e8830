// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package async

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

func TestQueue_RunsTasks(t *testing.T) {
	q := NewQueue(Config{Workers: 4, QueueSize: 16})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = q.Serve(ctx)
		close(done)
	}()

	var ran atomic.Int32
	finished := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		ok := q.Submit("test", func(context.Context) error {
			ran.Add(1)
			finished <- struct{}{}
			return nil
		})
		if !ok {
			t.Fatalf("Submit %d rejected", i)
		}
	}
	for i := 0; i < 10; i++ {
		select {
		case <-finished:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d tasks ran", ran.Load())
		}
	}

	cancel()
	<-done
	if q.Submit("late", func(context.Context) error { return nil }) {
		t.Error("Submit after shutdown should be rejected")
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 1})
	noop := func(context.Context) error { return nil }

	if !q.Submit("fill", noop) {
		t.Fatal("first submit should fit")
	}
	before := testutil.ToFloat64(metrics.AsyncTasks.WithLabelValues("overflow", "dropped"))
	if q.Submit("overflow", noop) {
		t.Error("submit to a full queue should be rejected")
	}
	after := testutil.ToFloat64(metrics.AsyncTasks.WithLabelValues("overflow", "dropped"))
	if after != before+1 {
		t.Errorf("dropped counter moved by %v, want 1", after-before)
	}
}

func TestQueue_DrainsOnShutdown(t *testing.T) {
	q := NewQueue(Config{Workers: 1, QueueSize: 8, DrainTimeout: time.Second})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		q.Submit("drain", func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Serve(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() = %v, want context.Canceled", err)
	}
	if got := ran.Load(); got != 5 {
		t.Errorf("drained %d tasks, want 5", got)
	}
}

func TestSafeRun_RecoversPanics(t *testing.T) {
	err := safeRun(context.Background(), func(context.Context) error {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected error from panicking task")
	}
}

func TestInline(t *testing.T) {
	var ran bool
	in := Inline{Timeout: time.Second}
	ok := in.Submit("inline", func(ctx context.Context) error {
		if _, has := ctx.Deadline(); !has {
			t.Error("inline task should carry a deadline")
		}
		ran = true
		return errors.New("ignored")
	})
	if !ok || !ran {
		t.Errorf("Inline.Submit ok=%v ran=%v", ok, ran)
	}
}
