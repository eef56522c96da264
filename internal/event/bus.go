package event

import (
	"sort"
	"sync"
)

// Handler receives a published payload
type Handler[T any] func(T)

// Bus is a typed publish/subscribe hub keyed by event name. Handlers run
// synchronously in subscription order on the publishing goroutine.
type Bus[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers map[string]map[int]Handler[T]
}

// NewBus creates an empty bus
func NewBus[T any]() *Bus[T] {
	return &Bus[T]{handlers: make(map[string]map[int]Handler[T])}
}

// On subscribes h to name and returns a function that removes the
// subscription. Calling the returned function more than once is harmless.
func (b *Bus[T]) On(name string, h Handler[T]) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]Handler[T])
	}
	b.handlers[name][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers[name], id)
			if len(b.handlers[name]) == 0 {
				delete(b.handlers, name)
			}
		})
	}
}

// Emit delivers payload to every handler subscribed to name
func (b *Bus[T]) Emit(name string, payload T) {
	b.mu.RLock()
	subs := b.handlers[name]
	ids := make([]int, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	hs := make([]Handler[T], 0, len(ids))
	for _, id := range ids {
		hs = append(hs, subs[id])
	}
	b.mu.RUnlock()

	for _, h := range hs {
		h(payload)
	}
}

// Count returns the number of handlers subscribed to name
func (b *Bus[T]) Count(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[name])
}

// Total returns the number of handlers across all event names
func (b *Bus[T]) Total() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, subs := range b.handlers {
		n += len(subs)
	}
	return n
}
