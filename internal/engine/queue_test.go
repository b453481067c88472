package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsong/usb/internal/ir"
)

func dispatchEvent(id string) Event {
	return Event{Type: EventTypeDispatch, Dispatch: &ir.Dispatch{ID: id}}
}

func TestEventQueue_EnqueueDequeue(t *testing.T) {
	q := newEventQueue()

	require.True(t, q.Enqueue(dispatchEvent("d-1")))

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, EventTypeDispatch, got.Type)
	assert.Equal(t, "d-1", got.Dispatch.ID)
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	q.Enqueue(dispatchEvent("A"))
	q.Enqueue(Event{Type: EventTypeReply, Reply: &ir.Reply{ID: "B"}})
	q.Enqueue(dispatchEvent("C"))

	e1, _ := q.TryDequeue()
	e2, _ := q.TryDequeue()
	e3, _ := q.TryDequeue()
	assert.Equal(t, "A", e1.Dispatch.ID)
	assert.Equal(t, "B", e2.Reply.ID)
	assert.Equal(t, "C", e3.Dispatch.ID)

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_WaitSignals(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Enqueue(dispatchEvent("late"))
	}()

	select {
	case <-q.Wait():
		e, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, "late", e.Dispatch.ID)
	case <-time.After(time.Second):
		t.Fatal("wait did not signal")
	}
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(dispatchEvent("after-close")))

	select {
	case <-q.Wait():
	case <-time.After(100 * time.Millisecond):
		t.Fatal("closed queue should wake waiters")
	}
}

func TestEventQueue_Len(t *testing.T) {
	q := newEventQueue()
	assert.Equal(t, 0, q.Len())

	q.Enqueue(dispatchEvent("1"))
	q.Enqueue(dispatchEvent("2"))
	assert.Equal(t, 2, q.Len())

	q.TryDequeue()
	assert.Equal(t, 1, q.Len())
}

func TestEventQueue_ThreadSafe(t *testing.T) {
	q := newEventQueue()

	const producers = 10
	const eventsPerProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < eventsPerProducer; i++ {
				q.Enqueue(dispatchEvent(fmt.Sprintf("%d-%d", p, i)))
			}
		}(p)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		e, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[e.Dispatch.ID] = true
	}
	assert.Len(t, seen, producers*eventsPerProducer)
}
