package cart

import (
	"sync"
)

// Bus fans cart change signals out to every subscribed view in the
// process. Delivery is best-effort: a subscriber that falls behind
// drops signals rather than blocking the publisher. Views pair the bus
// with interval polling for liveness (see Mirror).
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan string
	next int
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan string)}
}

// Broadcast notifies all subscribers that the value under key changed.
func (b *Bus) Broadcast(key string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- key:
		default:
			// Subscriber is behind; it will catch up on its next poll.
		}
	}
}

// Subscribe registers a listener. The returned cancel function must be
// called to release the subscription.
func (b *Bus) Subscribe() (<-chan string, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan string, 16)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}
