package pubsub

import "sync"

// Observers is an ordered list of synchronous handlers for one event type.
// Handlers compose: adding one never replaces another, and each Add returns
// its own removal func.
type Observers[T any] struct {
	mu       sync.RWMutex
	nextID   uint64
	handlers []observer[T]
}

type observer[T any] struct {
	id uint64
	fn func(T)
}

// Add appends fn and returns a func that removes exactly this registration.
func (o *Observers[T]) Add(fn func(T)) (remove func()) {
	o.mu.Lock()
	o.nextID++
	id := o.nextID
	o.handlers = append(o.handlers, observer[T]{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			for i, h := range o.handlers {
				if h.id == id {
					o.handlers = append(o.handlers[:i:i], o.handlers[i+1:]...)
					return
				}
			}
		})
	}
}

// Notify calls every handler in registration order. Handlers run on the
// caller's goroutine, outside the lock, so they may add or remove observers.
func (o *Observers[T]) Notify(v T) {
	o.mu.RLock()
	snapshot := make([]observer[T], len(o.handlers))
	copy(snapshot, o.handlers)
	o.mu.RUnlock()

	for _, h := range snapshot {
		h.fn(v)
	}
}

// Len returns the number of registered handlers.
func (o *Observers[T]) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.handlers)
}
