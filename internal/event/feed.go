// Package event provides a minimal typed subscription feed used for all
// callback surfaces in callkit. Each feed carries one payload type, so a
// handler can never be registered against the wrong event.
package event

import "sync"

// Feed is a set of handlers for one event type. Handlers are invoked in
// registration order. The zero value is ready to use.
type Feed[T any] struct {
	mu   sync.Mutex
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a cancel function that removes exactly
// this registration. Cancelling twice is a no-op.
func (f *Feed[T]) Subscribe(fn func(T)) (cancel func()) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs = append(f.subs, subscriber[T]{id: id, fn: fn})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s.id == id {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				return
			}
		}
	}
}

// Emit delivers v to every current subscriber, synchronously and in
// registration order. Handlers registered while Emit runs are not invoked
// for this emission.
func (f *Feed[T]) Emit(v T) {
	f.mu.Lock()
	snapshot := make([]subscriber[T], len(f.subs))
	copy(snapshot, f.subs)
	f.mu.Unlock()

	for _, s := range snapshot {
		s.fn(v)
	}
}

// Len reports the number of active subscribers.
func (f *Feed[T]) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
