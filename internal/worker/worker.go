// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package worker runs blocking side effects (MQTT publishes, buffer file
// appends) off the serial read loop while keeping their order.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Queue hands jobs to a single goroutine through a bounded channel. Jobs run
// in submission order. When the channel is full new jobs are dropped and
// counted so a stalled broker or disk never blocks frame reassembly.
type Queue[T any] struct {
	name    string
	jobs    chan T
	handle  func(T) error
	log     zerolog.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// Start launches the worker goroutine. size is the queue capacity.
func Start[T any](name string, size int, handle func(T) error, log zerolog.Logger) *Queue[T] {
	if size < 1 {
		size = 1
	}
	q := &Queue[T]{
		name:   name,
		jobs:   make(chan T, size),
		handle: handle,
		log:    log.With().Str("queue", name).Logger(),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue[T]) run() {
	defer close(q.done)
	for job := range q.jobs {
		if err := q.handle(job); err != nil {
			q.failed.Add(1)
			q.log.Error().Err(err).Msg("job failed")
		}
	}
}

// Submit enqueues job without blocking. It reports false when the job was
// dropped because the queue is full or closed.
func (q *Queue[T]) Submit(job T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.jobs <- job:
		return true
	default:
		n := q.dropped.Add(1)
		if n == 1 || n%100 == 0 {
			q.log.Warn().Uint64("dropped", n).Msg("queue full, dropping job")
		}
		return false
	}
}

// Close stops accepting jobs and waits until the queued ones have run.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	q.mu.Unlock()
	<-q.done
}

// Dropped returns how many jobs were rejected.
func (q *Queue[T]) Dropped() uint64 { return q.dropped.Load() }

// Failed returns how many jobs returned an error.
func (q *Queue[T]) Failed() uint64 { return q.failed.Load() }
