// Package queue buffers journal entries between the lifecycle engine and the
// journal writers.
package queue

import (
	"context"
	"sync"

	"github.com/okian/whodunit/internal/domain/model"
	"github.com/okian/whodunit/pkg/logger"
	"github.com/okian/whodunit/pkg/metrics"
)

const defaultQueueCapacity = 4096

// Entry is the payload flowing through the queue.
type Entry = model.JournalEntry

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an entry. Returns false if the queue is full or closed.
	Enqueue(ctx context.Context, e Entry) bool
	// Dequeue returns the channel entries are delivered on. It is closed,
	// after the backlog has been drained, once the queue is closed.
	Dequeue(ctx context.Context) <-chan Entry
	// Len returns the current number of queued entries.
	Len(ctx context.Context) int
	// Close stops accepting entries.
	Close() error
	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	entries  chan Entry
	capacity int
	logger   logger.Logger

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	q.entries = make(chan Entry, q.capacity)

	metrics.UpdateJournalQueueCapacity(q.capacity)
	metrics.UpdateJournalQueueSize(0)
	return q
}

// Enqueue adds an entry to the queue without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Entry) bool { //nolint:gocritic // hugeParam: Entry is sent by value
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordJournalDropped("closed")
		return false
	}
	select {
	case q.entries <- e:
		metrics.RecordJournalEnqueued()
		metrics.UpdateJournalQueueSize(len(q.entries))
		return true
	case <-ctx.Done():
		metrics.RecordJournalDropped("context_cancelled")
		return false
	default:
		metrics.RecordJournalDropped("queue_full")
		return false
	}
}

// Publish enqueues entries in order. The journal is best effort: entries that
// do not fit are dropped and logged, never blocking the caller.
func (q *InMemoryQueue) Publish(ctx context.Context, entries []model.JournalEntry) {
	for i := range entries {
		if !q.Enqueue(context.WithoutCancel(ctx), entries[i]) {
			q.logger.Warn(ctx, "journal entry dropped",
				logger.String("entry_id", entries[i].ID),
				logger.Int64("active_id", entries[i].ActiveID),
				logger.String("kind", string(entries[i].Kind)),
			)
		}
	}
}

// Dequeue returns the delivery channel.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Entry {
	return q.entries
}

// Len returns the current number of queued entries.
func (q *InMemoryQueue) Len(ctx context.Context) int {
	size := len(q.entries)
	metrics.UpdateJournalQueueSize(size)
	return size
}

// Capacity returns the queue capacity.
func (q *InMemoryQueue) Capacity() int { return q.capacity }

// Close stops accepting entries. Entries already queued stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.entries)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
