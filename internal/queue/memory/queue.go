// Package memory provides the in-process check queue.
package memory

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopassist/watchd/internal/telemetry"
	"github.com/shopassist/watchd/internal/watcher"
)

// ErrClosed is returned once the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// ErrFull is returned when the queue is at capacity.
var ErrFull = errors.New("queue full")

// Queue is a bounded priority queue with dedup by watcher id. An id stays
// reserved from EnqueueUnique until Done, covering both queued and in-flight
// work, so at most one check per watcher exists at any time.
type Queue struct {
	mu       sync.Mutex
	items    itemHeap
	reserved map[string]struct{}
	capacity int
	tokens   chan struct{}
	done     chan struct{}
	closed   bool
	seq      uint64
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &Queue{
		reserved: make(map[string]struct{}),
		capacity: capacity,
		tokens:   make(chan struct{}, capacity),
		done:     make(chan struct{}),
	}
}

// EnqueueUnique adds an item unless one for the same watcher is already
// queued or in flight. It reports whether the item was accepted.
func (q *Queue) EnqueueUnique(_ context.Context, item watcher.QueueItem) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if _, dup := q.reserved[item.WatcherID]; dup {
		return false, nil
	}
	if len(q.items) >= q.capacity {
		return false, fmt.Errorf("enqueue %s: %w", item.WatcherID, ErrFull)
	}

	q.reserved[item.WatcherID] = struct{}{}
	q.seq++
	heap.Push(&q.items, queued{item: item, seq: q.seq})
	q.tokens <- struct{}{}
	telemetry.SetQueueDepth(len(q.reserved))
	return true, nil
}

// Dequeue pops the highest-priority item, blocking until one is available or
// the context ends. The watcher id stays reserved until Done is called.
func (q *Queue) Dequeue(ctx context.Context) (watcher.QueueItem, error) {
	select {
	case <-ctx.Done():
		return watcher.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.done:
		return watcher.QueueItem{}, ErrClosed
	case <-q.tokens:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		// Closed between token receive and lock.
		return watcher.QueueItem{}, ErrClosed
	}
	popped := heap.Pop(&q.items).(queued)
	return popped.item, nil
}

// Done releases a watcher's reservation so the scheduler may dispatch it
// again on a later pass.
func (q *Queue) Done(watcherID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.reserved, watcherID)
	telemetry.SetQueueDepth(len(q.reserved))
}

// Pending reports how many ids are queued or in flight.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.reserved)
}

// Close shuts the queue down; blocked Dequeue calls return ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

type queued struct {
	item watcher.QueueItem
	seq  uint64
}

// itemHeap orders by ascending priority value (lower dispatches sooner),
// then by submission order.
type itemHeap []queued

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority < h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(queued))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
