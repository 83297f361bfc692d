package notify

import "sync"

// Bus is a minimal in-process fan-out of alerts to subscribed listeners.
type Bus[T any] struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(T)
}

func NewBus[T any]() *Bus[T] {
	return &Bus[T]{listeners: make(map[int]func(T))}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (b *Bus[T]) Subscribe(fn func(T)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Emit delivers the payload to every current listener, synchronously.
func (b *Bus[T]) Emit(payload T) {
	b.mu.Lock()
	fns := make([]func(T), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
