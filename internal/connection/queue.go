package connection

import (
	"time"
)

// queuedMessage is one outbound message waiting for the socket to open.
type queuedMessage struct {
	id         int64
	frame      Frame
	opts       SendOptions
	enqueuedAt time.Time
	result     *SendResult
	expiry     *time.Timer
}

// sendQueue is the bounded outbound queue. Entries are kept in enqueue order;
// flush order is priority tier high-to-low, FIFO within a tier. When the
// queue is full the oldest entry of the lowest present tier is evicted, which
// degenerates to plain oldest-first when every entry shares a tier.
type sendQueue struct {
	capacity int
	items    []*queuedMessage
}

func newSendQueue(capacity int) *sendQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &sendQueue{capacity: capacity}
}

func (q *sendQueue) len() int {
	return len(q.items)
}

// push appends m, evicting first if the queue is full. The evicted message
// (if any) is returned so the caller can fail its result.
func (q *sendQueue) push(m *queuedMessage) *queuedMessage {
	var evicted *queuedMessage
	if len(q.items) >= q.capacity {
		evicted = q.evict()
	}
	q.items = append(q.items, m)
	return evicted
}

// evict removes and returns the oldest entry of the lowest priority tier
// present in the queue.
func (q *sendQueue) evict() *queuedMessage {
	if len(q.items) == 0 {
		return nil
	}

	victim := 0
	for i, m := range q.items {
		if m.opts.Priority < q.items[victim].opts.Priority {
			victim = i
		}
	}

	m := q.items[victim]
	q.items = append(q.items[:victim], q.items[victim+1:]...)
	return m
}

// remove takes the entry with the given id out of the queue, or returns nil
// if it is no longer queued.
func (q *sendQueue) remove(id int64) *queuedMessage {
	for i, m := range q.items {
		if m.id == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return m
		}
	}
	return nil
}

// flushOrder empties the queue and returns its entries in transmission
// order: high tier before normal before low, FIFO within a tier.
func (q *sendQueue) flushOrder() []*queuedMessage {
	out := make([]*queuedMessage, 0, len(q.items))
	for tier := PriorityHigh; tier >= PriorityLow; tier-- {
		for _, m := range q.items {
			if m.opts.Priority == tier {
				out = append(out, m)
			}
		}
	}
	q.items = q.items[:0]
	return out
}

// drain empties the queue in enqueue order, for failing everything at once.
func (q *sendQueue) drain() []*queuedMessage {
	out := q.items
	q.items = nil
	return out
}
