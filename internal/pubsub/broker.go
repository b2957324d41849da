package pubsub

import (
	"context"
	"sync"
	"time"
)

const defaultBufferSize = 64

// Broker fans published values out to subscriber channels. Publish never
// blocks: a subscriber whose buffer is full misses the event, visible to it as
// a gap in Event.Seq and counted by Dropped.
type Broker[T any] struct {
	mu      sync.Mutex
	subs    map[uint64]chan Event[T]
	nextID  uint64
	seq     uint64
	dropped uint64
	closed  bool
	done    chan struct{}
	buffer  int
}

// NewBroker creates a broker with the default per-subscriber buffer.
func NewBroker[T any]() *Broker[T] {
	return NewBrokerWithBuffer[T](defaultBufferSize)
}

// NewBrokerWithBuffer creates a broker whose subscribers buffer size events.
func NewBrokerWithBuffer[T any](size int) *Broker[T] {
	if size < 0 {
		size = 0
	}
	return &Broker[T]{
		subs:   make(map[uint64]chan Event[T]),
		done:   make(chan struct{}),
		buffer: size,
	}
}

// Subscribe returns a channel receiving every event published from now on.
// The channel is closed when ctx is cancelled or the broker is closed.
func (b *Broker[T]) Subscribe(ctx context.Context) <-chan Event[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event[T], b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = ch

	go func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(id)
		case <-b.done:
		}
	}()
	return ch
}

func (b *Broker[T]) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers payload to every subscriber with buffer space and returns
// the event's sequence number, or 0 once the broker is closed. Publishes are
// serialized so each subscriber sees increasing Seq values.
func (b *Broker[T]) Publish(payload T) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}

	b.seq++
	ev := Event[T]{Seq: b.seq, Payload: payload, Timestamp: time.Now()}
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.dropped++
		}
	}
	return b.seq
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (b *Broker[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close closes every subscriber channel. Later publishes are ignored and later
// subscriptions receive an already closed channel.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
