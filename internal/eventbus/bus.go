package eventbus

import (
	"reflect"
	"sync"
)

// Handler is a callback invoked when an event is emitted on its topic.
type Handler func(args ...any)

type entry struct {
	fn   Handler
	ptr  uintptr
	once bool
}

// Bus is a concurrent-safe, in-memory publish/subscribe dispatcher keyed by
// topic name.
type Bus struct {
	mu       sync.Mutex
	handlers map[string][]entry
}

// New creates a ready-to-use Bus.
func New() *Bus {
	return &Bus{
		handlers: make(map[string][]entry),
	}
}

// On registers a handler for a topic. The same handler may be registered more
// than once and will then be invoked once per registration.
func (b *Bus) On(topic string, h Handler) {
	b.add(topic, h, false)
}

// Once registers a handler that is removed after its first invocation.
func (b *Bus) Once(topic string, h Handler) {
	b.add(topic, h, true)
}

func (b *Bus) add(topic string, h Handler, once bool) {
	if h == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], entry{
		fn:   h,
		ptr:  reflect.ValueOf(h).Pointer(),
		once: once,
	})
}

// Off removes every registration of h on topic. Handler identity is the
// function's code pointer, so two closures built from the same literal are
// indistinguishable.
func (b *Bus) Off(topic string, h Handler) {
	if h == nil {
		return
	}
	ptr := reflect.ValueOf(h).Pointer()

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.handlers[topic]
	kept := entries[:0]
	for _, e := range entries {
		if e.ptr != ptr {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(b.handlers, topic)
		return
	}
	b.handlers[topic] = kept
}

// Emit synchronously invokes all handlers registered for topic in
// registration order and reports whether any handler existed. A panicking
// handler does not stop the remaining handlers.
func (b *Bus) Emit(topic string, args ...any) bool {
	b.mu.Lock()
	entries := b.handlers[topic]
	if len(entries) == 0 {
		b.mu.Unlock()
		return false
	}

	// Snapshot before dispatch so handlers may re-enter the bus, and strip
	// once-registrations so they fire at most one time even on re-entrant
	// emits.
	snapshot := make([]entry, len(entries))
	copy(snapshot, entries)

	kept := entries[:0]
	for _, e := range entries {
		if !e.once {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(b.handlers, topic)
	} else {
		b.handlers[topic] = kept
	}
	b.mu.Unlock()

	for _, e := range snapshot {
		invoke(e.fn, args)
	}
	return true
}

func invoke(h Handler, args []any) {
	defer func() {
		_ = recover()
	}()
	h(args...)
}

// RemoveAllListeners clears the given topics, or every topic when called with
// none.
func (b *Bus) RemoveAllListeners(topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(topics) == 0 {
		b.handlers = make(map[string][]entry)
		return
	}
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
}

// ListenerCount returns the number of handlers registered for topic.
func (b *Bus) ListenerCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}
