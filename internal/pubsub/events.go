// Package pubsub provides in-process event fan-out: ordered synchronous
// observer lists and a buffered, non-blocking broker for asynchronous
// consumers such as Bubble Tea programs.
package pubsub

import (
	"context"
	"time"
)

// Event is one published value. Seq increases by one per Publish on a
// broker, so a subscriber that sees a gap knows it missed events.
type Event[T any] struct {
	Seq       uint64
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher publishes values to subscribers.
type Publisher[T any] interface {
	Publish(payload T) uint64
}
