package store

import (
	"context"
	"sync"
)

// Hub fans committed changes out to in-process subscribers. Callbacks run on
// the publishing goroutine and must not block.
type Hub struct {
	mu   sync.RWMutex
	next uint64
	subs map[uint64]subscriber
}

type subscriber struct {
	path string
	fn   func(Change)
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]subscriber)}
}

// Subscribe registers fn for changes at or below path. The subscription ends
// when the returned function is called or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, path string, fn func(Change)) func() {
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = subscriber{path: path, fn: fn}
	h.mu.Unlock()

	remove := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	stop := context.AfterFunc(ctx, remove)
	return func() {
		stop()
		remove()
	}
}

// Publish delivers changes in order.
func (h *Hub) Publish(changes ...Change) {
	if len(changes) == 0 {
		return
	}
	h.mu.RLock()
	subs := make([]subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()

	for _, c := range changes {
		for _, s := range subs {
			if Covers(s.path, c.Path) {
				s.fn(c)
			}
		}
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
