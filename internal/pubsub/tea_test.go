package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenCmd_DeliversEvent(t *testing.T) {
	b := NewBroker[string]()
	defer b.Close()
	ctx := context.Background()
	ch := b.Subscribe(ctx)

	b.Publish("hello")
	msg := ListenCmd(ctx, ch)()

	ev, ok := msg.(Event[string])
	require.True(t, ok)
	require.Equal(t, "hello", ev.Payload)
}

func TestListenCmd_NilAfterCancelOrClose(t *testing.T) {
	b := NewBroker[string]()
	ctx, cancel := context.WithCancel(context.Background())
	ch := b.Subscribe(ctx)
	cancel()
	require.Nil(t, ListenCmd(ctx, ch)())

	ch = b.Subscribe(context.Background())
	b.Close()
	require.Nil(t, ListenCmd(context.Background(), ch)())
}

func TestContinuousListener_ListenRepeatedly(t *testing.T) {
	b := NewBroker[int]()
	defer b.Close()
	l := NewContinuousListener(context.Background(), b)

	for i := range 3 {
		b.Publish(i)
		done := make(chan Event[int], 1)
		go func() { done <- l.Listen()().(Event[int]) }()
		select {
		case ev := <-done:
			require.Equal(t, i, ev.Payload)
			require.Zero(t, l.Missed(ev))
		case <-time.After(time.Second):
			require.FailNow(t, "timeout")
		}
	}
}

func TestContinuousListener_Missed(t *testing.T) {
	l := &ContinuousListener[int]{}
	require.Zero(t, l.Missed(Event[int]{Seq: 5}), "the first event has no reference point")
	require.Zero(t, l.Missed(Event[int]{Seq: 6}))
	require.Equal(t, uint64(3), l.Missed(Event[int]{Seq: 10}))
	require.Zero(t, l.Missed(Event[int]{Seq: 9}), "stale events do not rewind")
	require.Zero(t, l.Missed(Event[int]{Seq: 11}))
}
