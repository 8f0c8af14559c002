package prefs

import "sync"

// Event announces a preference change to the other holders in one context.
type Event struct {
	Key   Key
	Value string
	// Source is the subscription ID of the publisher, which is skipped.
	Source int
}

// Bus fans preference changes out to every holder in one browsing context.
// Delivery is synchronous: Publish returns after every subscriber ran.
type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{next: 1, subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns its subscription ID and a cancel func.
func (b *Bus) Subscribe(fn func(Event)) (int, func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return id, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e to every subscriber except e.Source. Subscribers run
// outside the lock, so they may publish or subscribe themselves.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	targets := make([]func(Event), 0, len(b.subs))
	for id, fn := range b.subs {
		if id != e.Source {
			targets = append(targets, fn)
		}
	}
	b.mu.RUnlock()

	for _, fn := range targets {
		fn(e)
	}
}

// Len returns the number of live subscriptions.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
