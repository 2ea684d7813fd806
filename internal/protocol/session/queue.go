package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var ErrQueueClosed = errors.New("session: delivery queue closed")

// Queue is a bounded FIFO of deliveries shared by one producer and one
// consumer. Offer never blocks: a full queue evicts its oldest entry.
type Queue struct {
	mu     sync.Mutex
	items  []Delivery
	head   int
	n      int
	closed bool
	ready  chan struct{}

	evicted atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultConfig().QueueSize
	}
	return &Queue{
		items: make([]Delivery, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Offer appends d and reports whether the oldest entry was evicted to make
// room. Offers after Close are dropped.
func (q *Queue) Offer(d Delivery) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	evicted := false
	if q.n == len(q.items) {
		q.items[q.head] = Delivery{}
		q.head = (q.head + 1) % len(q.items)
		q.n--
		q.evicted.Add(1)
		evicted = true
	}
	q.items[(q.head+q.n)%len(q.items)] = d
	q.n++
	select {
	case q.ready <- struct{}{}:
	default:
	}
	return evicted
}

// Take blocks until an entry is available, the queue is closed, or ctx ends.
func (q *Queue) Take(ctx context.Context) (Delivery, error) {
	for {
		q.mu.Lock()
		if q.n > 0 {
			d := q.items[q.head]
			q.items[q.head] = Delivery{}
			q.head = (q.head + 1) % len(q.items)
			q.n--
			q.mu.Unlock()
			return d, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Delivery{}, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		case <-q.ready:
		}
	}
}

// Close discards queued entries and wakes a blocked Take.
func (q *Queue) Close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	dropped := q.n
	clear(q.items)
	q.head, q.n = 0, 0
	q.closed = true
	close(q.ready)
	return dropped
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

func (q *Queue) Cap() int { return len(q.items) }

// Evicted is the number of entries dropped by overflow.
func (q *Queue) Evicted() uint64 { return q.evicted.Load() }
