package engine

import (
	"context"
	"sync"

	"github.com/flowline/flowline/internal/flow"
)

// EventHandler consumes lifecycle events.
type EventHandler func(flow.Event)

// EventBus fans lifecycle events out to subscribers. Publish runs handlers
// synchronously in subscription order on the publishing goroutine, so events
// for one node are observed in the order the dispatcher emitted them.
type EventBus struct {
	mu       sync.RWMutex
	nextID   int
	order    []int
	handlers map[int]EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{handlers: make(map[int]EventHandler)}
}

// Subscribe registers a handler and returns a token for Unsubscribe.
func (b *EventBus) Subscribe(handler EventHandler) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	b.order = append(b.order, id)
	return id
}

// Unsubscribe removes a handler. Unknown tokens are a no-op.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

func (b *EventBus) Publish(event flow.Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// Channel returns a buffered event stream tied to ctx. A full buffer drops
// events rather than blocking the dispatcher. When ctx is cancelled the
// subscription is removed and the channel closed; sends and the close share a
// lock, so a publish that copied the handler before the unsubscribe sees the
// closed flag and never touches the closed channel.
func (b *EventBus) Channel(ctx context.Context, bufSize int) <-chan flow.Event {
	ch := make(chan flow.Event, bufSize)
	var mu sync.Mutex
	closed := false
	id := b.Subscribe(func(e flow.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- e:
		default:
		}
	})
	go func() {
		<-ctx.Done()
		b.Unsubscribe(id)
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
