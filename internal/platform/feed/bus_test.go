package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livelocal/internal/remote"
)

type collector struct {
	mu     sync.Mutex
	events []remote.Event
}

func (c *collector) handle(event remote.Event) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *collector) snapshot() []remote.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]remote.Event, len(c.events))
	copy(out, c.events)
	return out
}

func TestBusDeliversInPublishOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var got collector
	bus.Subscribe("messages", remote.Filter{}, got.handle)

	for _, id := range []string{"m1", "m2", "m3"} {
		bus.Publish(remote.Event{Type: remote.EventInsert, Table: "messages", Row: remote.Row{"id": id}})
	}

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	events := got.snapshot()
	assert.Equal(t, "m1", events[0].Row["id"])
	assert.Equal(t, "m2", events[1].Row["id"])
	assert.Equal(t, "m3", events[2].Row["id"])
}

func TestBusFiltersByTableAndRow(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mine, all collector
	bus.Subscribe("notifications", remote.Eq("user_id", "u1"), mine.handle)
	bus.Subscribe("", remote.Filter{}, all.handle)

	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "notifications", Row: remote.Row{"user_id": "u1"}})
	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "notifications", Row: remote.Row{"user_id": "u2"}})
	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "messages", Row: remote.Row{"user_id": "u1"}})

	require.Eventually(t, func() bool {
		return len(all.snapshot()) == 3
	}, time.Second, 5*time.Millisecond)

	assert.Len(t, mine.snapshot(), 1)
	assert.Equal(t, "u1", mine.snapshot()[0].Row["user_id"])
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var first, second collector
	sub := bus.Subscribe("messages", remote.Filter{}, first.handle)
	bus.Subscribe("messages", remote.Filter{}, second.handle)

	sub.Unsubscribe()
	sub.Unsubscribe() // double unsubscribe is safe

	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "messages", Row: remote.Row{"id": "m1"}})

	require.Eventually(t, func() bool {
		return len(second.snapshot()) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, first.snapshot())
}

func TestBusCloseDropsSubscribers(t *testing.T) {
	bus := NewBus()

	var got collector
	bus.Subscribe("messages", remote.Filter{}, got.handle)
	bus.Close()

	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "messages", Row: remote.Row{"id": "m1"}})
	sub := bus.Subscribe("messages", remote.Filter{}, got.handle)
	bus.Publish(remote.Event{Type: remote.EventInsert, Table: "messages", Row: remote.Row{"id": "m2"}})
	sub.Unsubscribe()

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, got.snapshot())
}
