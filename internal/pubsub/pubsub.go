// SPDX-License-Identifier: MPL-2.0

// Package pubsub provides a small typed publish/subscribe bus.
//
// Each Bus carries exactly one payload type, so a subscriber to the log
// feed cannot accidentally receive status payloads and vice versa. Delivery
// is synchronous and in publish order: Publish invokes every handler before
// returning, which is what gives the run ledger its ordering guarantee
// (all log events observed before the terminal status event).
package pubsub

import "sync"

type (
	// Handler receives every event published to the bus it is subscribed to.
	// Handlers must not block; they run on the publisher's goroutine.
	Handler[T any] func(event T)

	// Bus distributes events of a single payload type to any number of
	// subscribers. The zero value is ready to use.
	Bus[T any] struct {
		mu       sync.Mutex
		nextID   int
		handlers map[int]Handler[T]
	}

	// Subscription identifies one subscriber on a Bus. Cancel removes it.
	Subscription struct {
		cancel func()
		once   sync.Once
	}
)

// NewBus creates an empty bus.
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{}
}

// Subscribe registers handler for every subsequently published event.
// The returned Subscription's Cancel removes the handler; cancelling twice
// is a no-op.
func (b *Bus[T]) Subscribe(handler Handler[T]) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers == nil {
		b.handlers = make(map[int]Handler[T])
	}
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler

	return &Subscription{cancel: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers, id)
	}}
}

// Publish delivers event to every current subscriber, in subscription order
// for a given publisher. Handlers registered during delivery do not receive
// the in-flight event.
func (b *Bus[T]) Publish(event T) {
	b.mu.Lock()
	handlers := make([]Handler[T], 0, len(b.handlers))
	for id := 0; id < b.nextID; id++ {
		if h, ok := b.handlers[id]; ok {
			handlers = append(handlers, h)
		}
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Cancel removes the subscription from its bus. Safe to call multiple times.
func (s *Subscription) Cancel() {
	s.once.Do(s.cancel)
}
