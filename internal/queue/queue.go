package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dgnsrekt/lipsync/lipsync"
)

var (
	// ErrQueueFull is returned when an item would exceed the memory limit.
	ErrQueueFull = lipsync.ErrQueueFull

	// ErrQueueClosed is returned when operations are attempted on a closed queue.
	ErrQueueClosed = lipsync.ErrQueueClosed
)

// Queue is a bounded FIFO of audio chunks. Producers block while the queue
// holds maxSize items; consumers block while it is empty. Both waits honour
// a context. An optional memory limit, measured with the cost function,
// rejects items instead of blocking.
type Queue[T any] struct {
	items []T

	// Configuration
	maxSize     int
	memoryLimit int64
	cost        func(T) int64

	currentMemory int64

	// Synchronization
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	// State
	closed bool
	stats  Stats
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued int64
	TotalDequeued int64
	TotalDropped  int64
	TotalCleared  int64
	CurrentSize   int
	PeakSize      int
	CurrentMemory int64
	LastEnqueue   time.Time
	LastDequeue   time.Time
}

// New creates a queue of at most maxSize items. A memoryLimit of zero or a
// nil cost disables the memory check.
func New[T any](maxSize int, memoryLimit int64, cost func(T) int64) *Queue[T] {
	if maxSize <= 0 {
		maxSize = 1
	}
	q := &Queue[T]{
		items:       make([]T, 0, min(maxSize, 64)),
		maxSize:     maxSize,
		memoryLimit: memoryLimit,
		cost:        cost,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Bytes is a cost function for byte chunks.
func Bytes(b []byte) int64 { return int64(len(b)) }

// String is a cost function for encoded chunks.
func String(s string) int64 { return int64(len(s)) }

// wake broadcasts c when ctx is done so a Wait can observe the
// cancellation. The returned function must be called when waiting ends.
func (q *Queue[T]) wake(ctx context.Context, c *sync.Cond) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		q.mu.Lock()
		c.Broadcast()
		q.mu.Unlock()
	})
}

// Enqueue appends item, waiting for space while the queue is full.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	stop := q.wake(ctx, q.notFull)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	// Apply backpressure - wait for space
	for len(q.items) >= q.maxSize && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.notFull.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	var size int64
	if q.cost != nil && q.memoryLimit > 0 {
		size = q.cost(item)
		if q.currentMemory+size > q.memoryLimit {
			q.stats.TotalDropped++
			return ErrQueueFull
		}
	}

	q.items = append(q.items, item)
	q.currentMemory += size

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	q.stats.PeakSize = max(q.stats.PeakSize, len(q.items))

	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the oldest item, waiting while the queue is
// empty.
func (q *Queue[T]) Dequeue(ctx context.Context) (T, error) {
	stop := q.wake(ctx, q.notEmpty)
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for len(q.items) == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
	if q.closed {
		return zero, ErrQueueClosed
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	if q.cost != nil && q.memoryLimit > 0 {
		q.currentMemory = max(q.currentMemory-q.cost(item), 0)
	}

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()

	// Signal that queue has space
	q.notFull.Signal()
	return item, nil
}

// DequeueTimeout is Dequeue with a deadline. It reports false, with a nil
// error, when nothing arrived within d.
func (q *Queue[T]) DequeueTimeout(ctx context.Context, d time.Duration) (T, bool, error) {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	item, err := q.Dequeue(tctx)
	switch {
	case err == nil:
		return item, true, nil
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return item, false, nil
	default:
		return item, false, err
	}
}

// Size returns the current number of items in the queue.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items)
	clear(q.items)
	q.items = q.items[:0]
	q.currentMemory = 0
	q.stats.TotalCleared += int64(n)

	// Signal that queue has space
	q.notFull.Broadcast()
	return n
}

// Stats returns current queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.items)
	stats.CurrentMemory = q.currentMemory
	return stats
}

// Close wakes every waiter. Further operations fail with ErrQueueClosed.
func (q *Queue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	// Wake up any waiting goroutines
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
	return nil
}
