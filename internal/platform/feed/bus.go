// Package feed fans table change events out to subscribers: the in-process
// client stores, the websocket hub and the Kafka relay all hang off one Bus.
package feed

import (
	"sync"

	"livelocal/internal/remote"
)

// Publisher is the write-side view of the bus the table stores use.
type Publisher interface {
	Publish(event remote.Event)
}

// Bus delivers change events to subscribers in publish order. Every
// subscriber gets its own goroutine and queue so a slow handler cannot
// stall the write path or other subscribers.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*subscriber
	closed bool
}

type subscriber struct {
	table   string // "" matches every table
	filter  remote.Filter
	handler remote.EventHandler
	queue   chan remote.Event
	done    chan struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]*subscriber)}
}

// Subscribe registers a handler for events on table (or all tables when
// table is "") whose row matches filter.
func (b *Bus) Subscribe(table string, filter remote.Filter, handler remote.EventHandler) remote.Subscription {
	sub := &subscriber{
		table:   table,
		filter:  filter,
		handler: handler,
		queue:   make(chan remote.Event, 256),
		done:    make(chan struct{}),
	}
	go sub.run()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.done)
		return remote.UnsubscribeFunc(func() {})
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub

	var once sync.Once
	return remote.UnsubscribeFunc(func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(sub.done)
		})
	})
}

// Publish hands the event to every matching subscriber. A subscriber whose
// queue is full drops the event; consumers are expected to resynchronize
// with a full refetch rather than rely on a gap-free feed.
func (b *Bus) Publish(event remote.Event) {
	b.mu.Lock()
	targets := make([]*subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.table != "" && sub.table != event.Table {
			continue
		}
		if !sub.filter.Match(event.Row) {
			continue
		}
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.queue <- event:
		case <-sub.done:
		default:
		}
	}
}

// Close drops all subscribers; further publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.done)
		delete(b.subs, id)
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.queue:
			s.handler(event)
		}
	}
}
