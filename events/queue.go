package events

import (
	"context"
	"sync"

	"github.com/Volcyy/nerodia/telemetry"
)

// Queue is an unbounded FIFO shared by all producers and drained by a single
// consumer. Enqueue never blocks and never drops; Dequeue blocks until an
// event is available.
type Queue struct {
	mu    sync.Mutex
	items []Event
	// ready holds a token while items is non-empty.
	ready chan struct{}
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

// Enqueue appends ev to the tail.
func (q *Queue) Enqueue(ev Event) {
	q.mu.Lock()
	q.items = append(q.items, ev)
	depth := len(q.items)
	q.mu.Unlock()
	q.signal()
	telemetry.RecordEnqueued(ev.Kind.String(), depth)
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the head, blocking while the queue is empty.
// It returns ctx.Err() if ctx ends first.
func (q *Queue) Dequeue(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items[0] = Event{}
			q.items = q.items[1:]
			depth := len(q.items)
			q.mu.Unlock()
			if depth > 0 {
				// Hand the token on so the next call does not wait.
				q.signal()
			}
			telemetry.SetQueueDepth(depth)
			return ev, nil
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
