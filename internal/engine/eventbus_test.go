package engine

import (
	"context"
	"testing"
	"time"

	"github.com/flowline/flowline/internal/flow"
)

func TestEventBusPublishOrder(t *testing.T) {
	bus := NewEventBus()

	var first, second []string
	bus.Subscribe(func(ev flow.Event) { first = append(first, ev.ID) })
	bus.Subscribe(func(ev flow.Event) { second = append(second, ev.ID) })

	for _, id := range []string{"e1", "e2", "e3"} {
		bus.Publish(flow.Event{ID: id})
	}

	for _, got := range [][]string{first, second} {
		if len(got) != 3 || got[0] != "e1" || got[1] != "e2" || got[2] != "e3" {
			t.Fatalf("handler saw %v, want [e1 e2 e3]", got)
		}
	}
}

func TestEventBusChannel(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Channel(ctx, 8)
	bus.Publish(flow.Event{ID: "e1"})

	select {
	case ev := <-ch:
		if ev.ID != "e1" {
			t.Fatalf("got %q, want e1", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			return // a buffered event may still drain; the close follows
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var got []string
	id := bus.Subscribe(func(ev flow.Event) { got = append(got, ev.ID) })
	bus.Publish(flow.Event{ID: "e1"})
	bus.Unsubscribe(id)
	bus.Publish(flow.Event{ID: "e2"})

	if len(got) != 1 || got[0] != "e1" {
		t.Fatalf("handler saw %v, want [e1]", got)
	}
}

func TestEventBusChannelPublishAfterCancel(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch := bus.Channel(ctx, 1)
	cancel()

	// Wait for the close so the cancellation path has fully run.
	deadline := time.After(time.Second)
	open := true
	for open {
		select {
		case _, ok := <-ch:
			open = ok
		case <-deadline:
			t.Fatal("channel not closed after context cancellation")
		}
	}

	// A publish racing the disconnect must drop the event, not panic.
	for i := 0; i < 200; i++ {
		bus.Publish(flow.Event{ID: "late"})
	}
}

func TestEventBusChannelDropsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Channel(ctx, 1)
	bus.Publish(flow.Event{ID: "e1"})
	bus.Publish(flow.Event{ID: "e2"}) // buffer full: dropped, not blocking

	if ev := <-ch; ev.ID != "e1" {
		t.Fatalf("got %q, want e1", ev.ID)
	}
	select {
	case ev := <-ch:
		t.Fatalf("unexpected second event %q", ev.ID)
	default:
	}
}
