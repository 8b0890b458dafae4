// Package events is the in-process notification bus. Topics are plain
// strings; handlers run synchronously on the publishing goroutine, in
// subscription order.
package events

import (
	"sort"
	"sync"
)

// Handler receives the payload published on a topic.
type Handler func(payload any)

type Bus struct {
	mu   sync.RWMutex
	next uint64
	subs map[string]map[uint64]Handler
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[uint64]Handler)}
}

// Subscribe registers h for topic. The returned Subscription must be
// released with Unsubscribe.
func (b *Bus) Subscribe(topic string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]Handler)
	}
	b.subs[topic][id] = h

	return &Subscription{bus: b, topic: topic, id: id}
}

// Publish delivers payload to every current subscriber of topic and returns
// how many handlers ran.
func (b *Bus) Publish(topic string, payload any) int {
	b.mu.RLock()
	set := b.subs[topic]
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		handlers = append(handlers, set[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(payload)
	}
	return len(handlers)
}

// Listeners reports the number of live subscriptions on topic.
func (b *Bus) Listeners(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[topic]
	delete(set, id)
	if len(set) == 0 {
		delete(b.subs, topic)
	}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus   *Bus
	topic string
	id    uint64
	once  sync.Once
}

// Unsubscribe detaches the handler. Only the first call has an effect; it
// reports whether this call performed the release.
func (s *Subscription) Unsubscribe() bool {
	released := false
	s.once.Do(func() {
		s.bus.remove(s.topic, s.id)
		released = true
	})
	return released
}

func (s *Subscription) Topic() string {
	return s.topic
}
