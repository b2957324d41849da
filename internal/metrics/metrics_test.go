package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.MessageRouted("deliver")
	c.MessageRouted("deliver")
	c.MessageRouted("buffer")
	c.BufferEvicted(3)
	c.BufferEvicted(0)
	c.JoinFailed("timeout")
	c.Reconnected()
	c.PushFailed("new_message")
	c.FrameReceived("presence_diff")
	c.SetSubscriptions(4)

	require.Equal(t, 2.0, testutil.ToFloat64(c.messages.WithLabelValues("deliver")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.messages.WithLabelValues("buffer")))
	require.Equal(t, 3.0, testutil.ToFloat64(c.evictions))
	require.Equal(t, 1.0, testutil.ToFloat64(c.joinFailures.WithLabelValues("timeout")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.reconnects))
	require.Equal(t, 1.0, testutil.ToFloat64(c.pushFailures.WithLabelValues("new_message")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.frames.WithLabelValues("presence_diff")))
	require.Equal(t, 4.0, testutil.ToFloat64(c.subscriptions))

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.MessageRouted("deliver")
		c.BufferEvicted(1)
		c.JoinFailed("x")
		c.Reconnected()
		c.PushFailed("x")
		c.FrameReceived("x")
		c.SetSubscriptions(1)
	})
}

func TestNew_NilRegistererDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}
