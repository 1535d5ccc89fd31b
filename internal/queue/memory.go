package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryQueue is an in-process Queue with at-least-once semantics: unacked
// deliveries return to the ready list after RedeliverAfter. Used by tests
// and by standalone mode, where receiver and worker share a process.
type MemoryQueue struct {
	mu             sync.Mutex
	seq            int
	ready          []*Message
	pending        map[string]*pendingEntry
	RedeliverAfter time.Duration
	notify         chan struct{}
	closed         bool
}

type pendingEntry struct {
	msg     *Message
	takenAt time.Time
}

// NewMemoryQueue creates an in-process queue. redeliverAfter bounds how long
// an unacked delivery stays invisible.
func NewMemoryQueue(redeliverAfter time.Duration) *MemoryQueue {
	if redeliverAfter <= 0 {
		redeliverAfter = 30 * time.Second
	}
	return &MemoryQueue{
		pending:        make(map[string]*pendingEntry),
		RedeliverAfter: redeliverAfter,
		notify:         make(chan struct{}, 1),
	}
}

func (q *MemoryQueue) Publish(_ context.Context, body []byte, attrs map[string]string) (string, error) {
	q.mu.Lock()
	q.seq++
	id := strconv.Itoa(q.seq)
	cp := make([]byte, len(body))
	copy(cp, body)
	attrCopy := make(map[string]string, len(attrs))
	for k, v := range attrs {
		attrCopy[k] = v
	}
	q.ready = append(q.ready, &Message{ID: id, Body: cp, Attributes: attrCopy})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return id, nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Message, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrEmpty
		}
		q.requeueExpiredLocked()
		if len(q.ready) > 0 {
			msg := q.ready[0]
			q.ready = q.ready[1:]
			msg.DeliveryCount++
			q.pending[msg.ID] = &pendingEntry{msg: msg, takenAt: time.Now()}
			out := *msg
			q.mu.Unlock()
			return &out, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, id)
	return nil
}

// Redeliver forces immediate requeue of a pending delivery (test helper).
func (q *MemoryQueue) Redeliver(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.pending[id]; ok {
		delete(q.pending, id)
		q.ready = append(q.ready, e.msg)
	}
}

// Depth reports ready + pending counts (test helper).
func (q *MemoryQueue) Depth() (ready, pending int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), len(q.pending)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

func (q *MemoryQueue) requeueExpiredLocked() {
	now := time.Now()
	for id, e := range q.pending {
		if now.Sub(e.takenAt) >= q.RedeliverAfter {
			delete(q.pending, id)
			q.ready = append(q.ready, e.msg)
		}
	}
}
