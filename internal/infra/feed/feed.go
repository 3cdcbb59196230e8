// Package feed provides a latest-value broadcaster. Every subscriber owns a
// one-slot mailbox: publishing never blocks, and a slow subscriber only ever
// observes the most recent value.
package feed

import "sync"

// Feed broadcasts values of type T to any number of subscribers.
type Feed[T any] struct {
	mu      sync.Mutex
	current T
	set     bool
	subs    map[uint64]chan T
	nextID  uint64
	closed  bool
}

// New creates an empty feed.
func New[T any]() *Feed[T] {
	return &Feed[T]{subs: make(map[uint64]chan T)}
}

// NewWithValue creates a feed whose current value is v.
func NewWithValue[T any](v T) *Feed[T] {
	f := New[T]()
	f.current = v
	f.set = true
	return f
}

// Publish replaces the current value and offers it to every subscriber,
// overwriting any value a subscriber has not received yet.
func (f *Feed[T]) Publish(v T) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.current = v
	f.set = true
	for _, ch := range f.subs {
		offer(ch, v)
	}
}

// Current returns the latest published value.
func (f *Feed[T]) Current() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.set
}

// Subscribe returns a channel that first yields the current value (if any)
// and then every later value that is not superseded before being read.
// The cancel func closes the channel; it is safe to call more than once.
func (f *Feed[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan T, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	if f.set {
		ch <- f.current
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of open subscriptions.
func (f *Feed[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close closes every subscription. Later publishes are ignored.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// offer must be called with f.mu held so no other sender races the slot.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
