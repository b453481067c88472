package engine

import (
	"sync"

	"github.com/bitsong/usb/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeDispatch represents an outer relay call to persist and send.
	EventTypeDispatch EventType = iota + 1
	// EventTypeReply represents a completion notification to persist and route.
	EventTypeReply
)

func (t EventType) String() string {
	switch t {
	case EventTypeDispatch:
		return "dispatch"
	case EventTypeReply:
		return "reply"
	default:
		return "unknown"
	}
}

// Event wraps dispatches and replies for the event queue.
type Event struct {
	Type     EventType
	Dispatch *ir.Dispatch
	Reply    *ir.Reply
}

// eventQueue is a thread-safe, unbounded FIFO queue for events.
//
// The Run loop is the only consumer. Producers are the executor, the relay
// transport delivering replies, and the loop itself when a send fails.
// A buffered signal channel lets the loop wait on the queue and a context
// at the same time.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
// Returns (Event{}, false) if the queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not pin Dispatch/Reply.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed when the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more events will be enqueued and wakes the loop.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
