package bus

import (
	"context"
	"sync"

	"orchestrator/pkg/exception"
)

// Queue is a bounded many-producer, single-consumer queue.
//
// Publish blocks while the queue is full. After Close no value is accepted,
// and every value accepted before Close is still delivered by Drain.
type Queue[T any] struct {
	ch     chan T
	done   chan struct{}
	sealed chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewQueue allocates a queue with the given capacity.
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{
		ch:     make(chan T, capacity),
		done:   make(chan struct{}),
		sealed: make(chan struct{}),
	}
}

// Publish enqueues v, waiting for space until ctx is done or the queue is closed.
func (q *Queue[T]) Publish(ctx context.Context, v T) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return exception.ErrQueueClosed
	}

	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return exception.ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue from accepting new values. It returns once no
// producer can enqueue anymore.
func (q *Queue[T]) Close() {
	q.once.Do(func() {
		close(q.done)
		q.mu.Lock()
		q.closed = true
		q.mu.Unlock()
		close(q.sealed)
	})
}

// C is the receive side for the consumer.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Sealed is closed after Close returned.
func (q *Queue[T]) Sealed() <-chan struct{} {
	return q.sealed
}

// Len returns the number of buffered values.
func (q *Queue[T]) Len() int {
	return len(q.ch)
}

// Drain hands every buffered value to handler. Call it after Sealed fired.
func (q *Queue[T]) Drain(handler func(T)) int {
	n := 0
	for {
		select {
		case v := <-q.ch:
			handler(v)
			n++
		default:
			return n
		}
	}
}
