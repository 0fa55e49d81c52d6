// Package queue buffers score-recorded notifications between the request
// path and the publishing workers.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/highscore/internal/domain/model"
	"github.com/okian/highscore/pkg/metrics"
)

const defaultQueueCapacity = 10000

// Message is one queued notification.
type Message struct {
	Event      model.ScoreRecorded
	EnqueuedAt time.Time
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a notification without blocking. It returns ErrFull when
	// the queue is at capacity and ErrClosed after Close.
	Enqueue(ctx context.Context, e model.ScoreRecorded) error

	// Dequeue returns the receive side of the queue. It is closed once the
	// queue is closed and drained.
	Dequeue() <-chan Message

	// Len returns the current number of queued notifications.
	Len() int

	// Close stops accepting notifications. Already queued ones stay
	// readable from Dequeue.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Message
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Message, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue implements Queue.Enqueue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.ScoreRecorded) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.events <- Message{Event: e, EnqueuedAt: time.Now()}:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue implements Queue.Dequeue.
func (q *InMemoryQueue) Dequeue() <-chan Message {
	return q.events
}

// Received records dequeue metrics for m; consumers call it after a receive.
func (q *InMemoryQueue) Received(m Message) {
	metrics.RecordQueueDequeue()
	metrics.RecordQueueProcessingLatency(float64(time.Since(m.EnqueuedAt).Microseconds()) / 1000)
	q.updateGauges()
}

// Len implements Queue.Len.
func (q *InMemoryQueue) Len() int {
	return len(q.events)
}

// Capacity returns the configured capacity.
func (q *InMemoryQueue) Capacity() int {
	return q.capacity
}

// Close implements Queue.Close.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

func (q *InMemoryQueue) updateGauges() {
	size := len(q.events)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}
