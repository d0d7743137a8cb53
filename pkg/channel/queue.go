package channel

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Put on a closed queue, and by Get once a closed
// queue is drained.
var ErrQueueClosed = errors.New("queue closed")

// Item is one entry of a response stream: either a fragment or the end marker.
type Item struct {
	Fragment Fragment `json:"fragment,omitzero"`
	End      bool     `json:"end,omitempty"`
}

// FragmentItem wraps f as a stream item.
func FragmentItem(f Fragment) Item { return Item{Fragment: f} }

// EndItem marks the end of a response stream.
func EndItem() Item { return Item{End: true} }

// Queue is a FIFO of stream items shared by one producer and one consumer.
// Put and Get block until they can proceed or ctx is done.
type Queue interface {
	Put(ctx context.Context, item Item) error
	Get(ctx context.Context) (Item, error)
}

// QueueFactory creates the queue backing one stream.
type QueueFactory func(streamID string) (Queue, error)

// MemoryQueueFactory returns a factory of in-process queues with the given capacity.
func MemoryQueueFactory(capacity int) QueueFactory {
	return func(string) (Queue, error) {
		return NewMemoryQueue(capacity), nil
	}
}

// MemoryQueue is an in-process Queue. A capacity of zero or less means unbounded.
type MemoryQueue struct {
	mu       sync.Mutex
	items    []Item
	capacity int
	closed   bool
	changed  chan struct{}
}

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue(capacity int) *MemoryQueue {
	return &MemoryQueue{
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

// Put appends item, waiting for space when the queue is bounded and full.
func (q *MemoryQueue) Put(ctx context.Context, item Item) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			q.items = append(q.items, item)
			q.broadcastLocked()
			q.mu.Unlock()
			return nil
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Get removes and returns the oldest item, waiting while the queue is empty.
func (q *MemoryQueue) Get(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			q.broadcastLocked()
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return Item{}, ErrQueueClosed
		}
		wait := q.changed
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Item{}, ctx.Err()
		case <-wait:
		}
	}
}

// Len reports the number of queued items.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close rejects further puts. Items already queued can still be read.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcastLocked()
	}
	return nil
}

// broadcastLocked wakes every waiter. Callers hold q.mu.
func (q *MemoryQueue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}

// QueueOutput streams fragments into a Queue as they are sent.
type QueueOutput struct {
	fragmentOutput

	queue Queue
}

// NewQueueOutput wraps queue. A nil queue is replaced by an unbounded MemoryQueue.
func NewQueueOutput(queue Queue) *QueueOutput {
	if queue == nil {
		queue = NewMemoryQueue(0)
	}

	o := &QueueOutput{queue: queue}
	o.store = o
	return o
}

// Name implements OutputChannel.
func (o *QueueOutput) Name() string { return "queue" }

// Queue returns the backing queue.
func (o *QueueOutput) Queue() Queue { return o.queue }

// LatestOutput always fails: consumed queue items cannot be peeked.
func (o *QueueOutput) LatestOutput() (*Fragment, error) {
	return nil, ErrUnsupportedOperation
}

func (o *QueueOutput) persist(ctx context.Context, fragment Fragment) error {
	return o.queue.Put(ctx, FragmentItem(fragment))
}
