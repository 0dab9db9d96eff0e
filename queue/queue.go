// Package queue provides a goroutine-safe FIFO with blocking and
// non-blocking consumption, used to decouple tile producers from consumers.
package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by PopContext once the queue is closed and drained.
var ErrClosed = errors.New("queue: closed")

// Queue is an unbounded FIFO safe for any number of concurrent producers
// and consumers. A single mutex covers every push and pop, so all
// operations are linearized and elements leave in push order.
//
// Every Push broadcasts to all blocked waiters; only one of them removes
// the element and the rest go back to waiting.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	head   int
	closed bool
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v to the back of the queue and wakes all waiters.
// Push panics if the queue has been closed.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		panic("queue: push on closed queue")
	}
	q.items = append(q.items, v)
	q.mu.Unlock()
	q.cond.Broadcast()
}

// WaitAndPop blocks until an element is available and removes it.
// It returns the zero value once the queue is closed and empty.
func (q *Queue[T]) WaitAndPop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.lenLocked() == 0 && !q.closed {
		q.cond.Wait()
	}
	v, _ := q.popLocked()
	return v
}

// PopContext is WaitAndPop with cancellation. It returns ctx.Err() when
// ctx is done first and ErrClosed when the queue is closed and empty.
func (q *Queue[T]) PopContext(ctx context.Context) (T, error) {
	// cond.Wait cannot select on ctx, so a cancelled ctx broadcasts to
	// get the waiter to re-check.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for q.lenLocked() == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
		q.cond.Wait()
	}
	if v, ok := q.popLocked(); ok {
		return v, nil
	}
	var zero T
	return zero, ErrClosed
}

// TryPop removes the front element if there is one. It never blocks.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Empty reports whether the queue held no elements at the time of the
// call. The answer may be stale by the time the caller reads it.
func (q *Queue[T]) Empty() bool {
	return q.Len() == 0
}

// Len returns a point-in-time element count.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Close marks the queue closed and wakes every waiter. Elements already
// queued can still be popped. Close is idempotent.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue[T]) lenLocked() int {
	return len(q.items) - q.head
}

// popLocked removes the front element. The backing array is compacted
// once the consumed prefix dominates so a long-lived queue does not grow
// without bound.
func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if q.lenLocked() == 0 {
		return zero, false
	}
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v, true
}
