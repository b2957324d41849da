package pubsub

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// ListenCmd returns a command that waits for the next event on ch and
// delivers it as a tea.Msg. It yields nil once ctx is done or ch is closed.
func ListenCmd[T any](ctx context.Context, ch <-chan Event[T]) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			return ev
		}
	}
}

// ContinuousListener holds one broker subscription for a Bubble Tea model.
// Return Listen from Update after handling each event to receive the next.
type ContinuousListener[T any] struct {
	ctx  context.Context
	ch   <-chan Event[T]
	last uint64
}

// NewContinuousListener subscribes to broker until ctx is cancelled.
func NewContinuousListener[T any](ctx context.Context, broker *Broker[T]) *ContinuousListener[T] {
	return &ContinuousListener[T]{ctx: ctx, ch: broker.Subscribe(ctx)}
}

// Listen returns a command delivering the next event.
func (l *ContinuousListener[T]) Listen() tea.Cmd {
	return ListenCmd(l.ctx, l.ch)
}

// Missed records ev as handled and returns how many events were skipped
// since the previously recorded one. Call it from Update only.
func (l *ContinuousListener[T]) Missed(ev Event[T]) uint64 {
	var n uint64
	if l.last != 0 && ev.Seq > l.last+1 {
		n = ev.Seq - l.last - 1
	}
	if ev.Seq > l.last {
		l.last = ev.Seq
	}
	return n
}
