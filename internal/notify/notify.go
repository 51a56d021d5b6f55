// Package notify implements a small typed publish/subscribe hub used to
// broadcast task state and progress changes to interested listeners.
package notify

import "sync"

// Listener receives a published value.
type Listener[T any] func(value T)

// Subscription identifies a registered listener and allows its removal.
// Remove is safe to call from inside the listener itself.
type Subscription[T any] struct {
	hub     *Hub[T]
	fn      Listener[T]
	removed bool
}

// Remove detaches the listener from its hub. Removing an already removed
// subscription is a no-op.
func (s *Subscription[T]) Remove() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// Hub is a broadcast channel for values of type T. The zero value is ready
// to use. It is safe for concurrent use.
type Hub[T any] struct {
	mu   sync.Mutex
	subs []*Subscription[T]
}

// Subscribe registers a listener and returns its subscription handle.
func (h *Hub[T]) Subscribe(fn Listener[T]) *Subscription[T] {
	sub := &Subscription[T]{hub: h, fn: fn}
	h.mu.Lock()
	h.subs = append(h.subs, sub)
	h.mu.Unlock()
	return sub
}

// Publish delivers value to every listener registered at the time of the
// call. The listener list is snapshotted first, so listeners may remove
// themselves (or others) while being invoked. Listeners added during a
// broadcast do not see that broadcast.
func (h *Hub[T]) Publish(value T) {
	h.mu.Lock()
	snapshot := make([]*Subscription[T], len(h.subs))
	copy(snapshot, h.subs)
	h.mu.Unlock()

	for _, sub := range snapshot {
		h.mu.Lock()
		dead := sub.removed
		h.mu.Unlock()
		if dead {
			continue
		}
		sub.fn(value)
	}
}

// Len returns the number of registered listeners.
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(sub *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub.removed {
		return
	}
	sub.removed = true
	for i, s := range h.subs {
		if s == sub {
			h.subs = append(h.subs[:i], h.subs[i+1:]...)
			break
		}
	}
}
