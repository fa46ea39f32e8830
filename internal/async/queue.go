// Marquee - Real-time Activity Distribution for Movie Reviews
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

// Package async runs post-commit side effects (fan-out, derived
// notifications) off the request path. Failures are logged and counted and
// never reach the caller that scheduled the task.
package async

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/marquee/internal/logging"
	"github.com/tomtom215/marquee/internal/metrics"
)

// Task is one unit of post-commit work.
type Task func(ctx context.Context) error

// Runner schedules tasks. Submit reports whether the task was accepted.
type Runner interface {
	Submit(name string, task Task) bool
}

// Config controls the worker pool.
type Config struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	// DrainTimeout bounds how long Serve keeps running queued tasks after
	// its context is canceled.
	DrainTimeout time.Duration
}

type job struct {
	name string
	task Task
}

// Queue is a bounded task queue drained by a fixed worker pool. Submit never
// blocks: when the queue is full the task is dropped and counted.
type Queue struct {
	cfg  Config
	jobs chan job

	mu     sync.RWMutex
	closed bool
}

var _ Runner = (*Queue)(nil)

// NewQueue creates a queue. Workers start when Serve is called; tasks
// submitted before that wait in the buffer.
func NewQueue(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	return &Queue{cfg: cfg, jobs: make(chan job, cfg.QueueSize)}
}

// Submit enqueues task without blocking.
func (q *Queue) Submit(name string, task Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		metrics.AsyncTasks.WithLabelValues(name, "dropped").Inc()
		logging.Warn().Str("task", name).Msg("Async queue closed, task dropped")
		return false
	}

	select {
	case q.jobs <- job{name: name, task: task}:
		metrics.AsyncQueueDepth.Set(float64(len(q.jobs)))
		return true
	default:
		metrics.AsyncTasks.WithLabelValues(name, "dropped").Inc()
		logging.Warn().Str("task", name).Int("queue_size", q.cfg.QueueSize).Msg("Async queue full, task dropped")
		return false
	}
}

// Serve runs the workers until ctx is canceled, then stops accepting tasks
// and drains what is already queued within DrainTimeout.
func (q *Queue) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	for i := 0; i < q.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case j := <-q.jobs:
					q.run(ctx, j)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(context.Background(), q.cfg.DrainTimeout)
	defer cancel()
	for {
		select {
		case j := <-q.jobs:
			q.run(drainCtx, j)
		default:
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for suture.
func (q *Queue) String() string {
	return "async-queue"
}

func (q *Queue) run(parent context.Context, j job) {
	metrics.AsyncQueueDepth.Set(float64(len(q.jobs)))

	ctx, cancel := context.WithTimeout(parent, q.cfg.TaskTimeout)
	defer cancel()

	err := safeRun(ctx, j.task)
	metrics.RecordAsyncTask(j.name, err)
	if err != nil {
		logging.Error().Err(err).Str("task", j.name).Msg("Async task failed")
	}
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("async: task panicked: %v", r)
		}
	}()
	return task(ctx)
}

// Inline runs tasks synchronously on the caller's goroutine with a
// background context. It keeps failure isolation but not asynchrony and is
// used when no queue is configured.
type Inline struct {
	Timeout time.Duration
}

var _ Runner = Inline{}

func (in Inline) Submit(name string, task Task) bool {
	ctx := context.Background()
	if in.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.Timeout)
		defer cancel()
	}
	err := safeRun(ctx, task)
	metrics.RecordAsyncTask(name, err)
	if err != nil {
		logging.Error().Err(err).Str("task", name).Msg("Inline task failed")
	}
	return true
}
