// Package bus implements the in-process, typed publish/subscribe event bus
// described in spec §4.1: synchronous, per-topic, per-publisher FIFO
// dispatch with no cross-topic ordering and no persistence.
package bus

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler receives a topic's message payload. Publishing with the wrong
// shape for a given topic is a programmer error the bus does not guard
// against.
type Handler func(msg any)

// Bus is a typed in-process publish/subscribe dispatcher. The zero value
// is not usable; construct with New.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[Topic][]Handler
}

// New returns a ready-to-use Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[Topic][]Handler)}
}

// Subscribe registers handler for topic. Subscribing the same handler
// reference twice for the same topic is a no-op.
func (b *Bus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, h := range b.subscribers[topic] {
		if sameHandler(h, handler) {
			return
		}
	}
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Unsubscribe removes handler from topic. Unsubscribing a handler that
// isn't registered is a no-op.
func (b *Bus) Unsubscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.subscribers[topic]
	for i, h := range handlers {
		if sameHandler(h, handler) {
			b.subscribers[topic] = append(handlers[:i], handlers[i+1:]...)
			return
		}
	}
}

// Subscribers returns the current subscriber list for topic, for
// diagnostics only.
func (b *Bus) Subscribers(topic Topic) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Handler, len(b.subscribers[topic]))
	copy(out, b.subscribers[topic])
	return out
}

// Publish synchronously invokes every current subscriber of topic, in
// registration order, on the caller's goroutine. A subscriber that panics
// does not prevent later subscribers from running; the panic is logged
// and swallowed.
func (b *Bus) Publish(topic Topic, msg any) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.subscribers[topic]))
	copy(handlers, b.subscribers[topic])
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(topic, h, msg)
	}
}

func (b *Bus) dispatch(topic Topic, h Handler, msg any) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("topic", string(topic)).
				Interface("panic", r).
				Msg("bus subscriber panicked, continuing dispatch")
		}
	}()
	h(msg)
}

// sameHandler compares two Handler values by underlying code pointer,
// which is the closest Go gets to "identical handler reference" for
// func values. Method values of the same method compare equal whatever
// their receiver, and closures created from the same function literal
// compare equal even when they capture different variables.
func sameHandler(a, b Handler) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
