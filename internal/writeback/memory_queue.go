package writeback

import (
	"context"
	"errors"
	"sync"

	"github.com/rzpsarthak13/cardtable/internal/core"
)

// ErrQueueFull is returned when a bounded queue has no room left.
var ErrQueueFull = errors.New("retry queue is full")

// MemoryQueue implements core.WriteBackQueue with a buffered channel.
// Writes are lost when the process exits.
type MemoryQueue struct {
	queue  chan *core.OrderWrite
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a queue that holds up to bufferSize writes.
func NewMemoryQueue(bufferSize int) *MemoryQueue {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &MemoryQueue{
		queue: make(chan *core.OrderWrite, bufferSize),
	}
}

// Enqueue adds a write without blocking.
func (q *MemoryQueue) Enqueue(ctx context.Context, write *core.OrderWrite) error {
	if err := validateWrite(write); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.queue <- write:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue takes up to batchSize writes in FIFO order without blocking.
func (q *MemoryQueue) Dequeue(ctx context.Context, batchSize int) ([]*core.OrderWrite, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	writes := make([]*core.OrderWrite, 0, batchSize)
	for i := 0; i < batchSize; i++ {
		select {
		case w, ok := <-q.queue:
			if !ok {
				return writes, nil
			}
			writes = append(writes, w)
		case <-ctx.Done():
			return writes, ctx.Err()
		default:
			return writes, nil
		}
	}
	return writes, nil
}

// Size returns the current number of queued writes.
func (q *MemoryQueue) Size() int {
	return len(q.queue)
}

// Close stops further enqueues. Queued writes can still be dequeued.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.queue)
	return nil
}
