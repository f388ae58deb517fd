// Package queue provides a thread-safe unbounded blocking FIFO used for the
// backend's read-request queue. Capacity is caller-controlled: the queue
// grows with whatever is pushed, so producers must not enqueue unboundedly
// more work than consumers will drain.
package queue

import (
	"sync"

	"github.com/c360/blockstore/errors"
)

// FIFO is an unbounded first-in first-out queue. Pop blocks while the queue
// is empty; Close wakes all blocked consumers. Closing replaces the sentinel
// values a poison-pill design would need: consumers drain remaining items and
// then observe the closed state.
type FIFO[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	items    []T
	head     int
	closed   bool
}

// New creates an empty queue.
func New[T any]() *FIFO[T] {
	q := &FIFO[T]{}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends an item. It never blocks. Pushing to a closed queue returns
// ErrQueueClosed.
func (q *FIFO[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return errors.WrapInvalid(errors.ErrQueueClosed, "FIFO", "Push", "enqueue")
	}

	q.items = append(q.items, item)
	q.notEmpty.Signal()
	return nil
}

// Pop removes and returns the oldest item, blocking while the queue is
// empty. The second return value is false once the queue is closed and
// drained.
func (q *FIFO[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items)-q.head == 0 && !q.closed {
		q.notEmpty.Wait()
	}

	var zero T
	if len(q.items)-q.head == 0 {
		return zero, false
	}

	item := q.items[q.head]
	q.items[q.head] = zero // release the reference for GC
	q.head++

	// Reclaim the drained prefix once it dominates the backing slice.
	if q.head > 64 && q.head*2 >= len(q.items) {
		q.items = append([]T(nil), q.items[q.head:]...)
		q.head = 0
	}

	return item, true
}

// Len returns the number of queued items.
func (q *FIFO[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// Close marks the queue closed and wakes every blocked consumer. Queued
// items remain poppable; further pushes fail. Closing twice is a no-op.
func (q *FIFO[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}
