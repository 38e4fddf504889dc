// Package bus is the in-process message fabric between the DOM sampler,
// the capture context, the coordinator and the UI. Delivery is at-most-once
// and unordered: a subscriber that cannot keep up loses messages rather
// than blocking the publisher, so consumers must upsert idempotently.
package bus

import "sync"

type Subscription struct {
	C    chan Message
	tags map[Tag]struct{}
}

func (s *Subscription) wants(t Tag) bool {
	_, ok := s.tags[t]
	return ok
}

type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	closed bool
}

func New() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers interest in the given tags. The returned channel is
// buffered; once full, further messages for this subscriber are dropped.
func (b *Bus) Subscribe(buffer int, tags ...Tag) *Subscription {
	sub := &Subscription{
		C:    make(chan Message, buffer),
		tags: make(map[Tag]struct{}, len(tags)),
	}
	for _, t := range tags {
		sub.tags[t] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.C)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish fans a message out to all interested subscribers without blocking.
func (b *Bus) Publish(m Message) {
	tag := m.Tag()

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if !sub.wants(tag) {
			continue
		}
		select {
		case sub.C <- m:
		default: // subscriber full, drop
		}
	}
}

func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	close(sub.C)
}

func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.C)
	}
	b.subs = nil
}
