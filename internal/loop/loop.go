// Package loop provides the single event context that owns narration state.
//
// Narration state (driver, handshake, renderer) is only ever touched from one
// goroutine. Backends and timers fire on other goroutines and hand their work
// over with Post or AfterFunc; the owner of the Loop drains it.
package loop

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending AfterFunc call.
type Timer interface {
	// Stop prevents the call from running. It reports whether the call was
	// still pending.
	Stop() bool
}

// Loop serialises work onto the event goroutine.
type Loop interface {
	Now() time.Time
	// Post schedules f to run on the event goroutine.
	Post(f func())
	// AfterFunc schedules f to run on the event goroutine after d.
	AfterFunc(d time.Duration, f func()) Timer
}

const defaultQueueSize = 256

// Queue is the production Loop. Posted functions are delivered on C and must
// be run by a single consumer, normally the bubbletea Update function.
type Queue struct {
	ch chan func()

	mu       sync.Mutex
	overflow []func()
	draining bool
}

// NewQueue returns a Queue with the given buffer size.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Queue{ch: make(chan func(), size)}
}

// Now returns the wall-clock time.
func (q *Queue) Now() time.Time { return time.Now() }

// Post enqueues f. It never blocks the caller, so it is safe to call from
// the event goroutine itself. Functions are delivered in the order they were
// posted; once the buffer is full later posts wait in an overflow list that a
// single goroutine feeds into the channel.
func (q *Queue) Post(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		select {
		case q.ch <- f:
			return
		default:
		}
	}
	q.overflow = append(q.overflow, f)
	if !q.draining {
		q.draining = true
		go q.drain()
	}
}

// drain moves overflow into the channel. The head stays in the list until
// its send completes so that Post cannot overtake it.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.overflow) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		f := q.overflow[0]
		q.mu.Unlock()

		q.ch <- f

		q.mu.Lock()
		q.overflow[0] = nil
		q.overflow = q.overflow[1:]
		q.mu.Unlock()
	}
}

// AfterFunc posts f after d.
func (q *Queue) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { q.Post(f) })
}

// C returns the channel of posted functions.
func (q *Queue) C() <-chan func() { return q.ch }

// Run drains the queue on the calling goroutine until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-q.ch:
			f()
		}
	}
}
