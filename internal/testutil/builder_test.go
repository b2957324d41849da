package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/router"
)

func TestPresenceBuilder_ConcurrentSessions(t *testing.T) {
	state := NewPresence().
		WithSession("alice", "a1", "1", "100").
		WithAgent("alice", "a2", "1", "200", "claude").
		WithSession("bob", "b1", "2", "150").
		Build()

	require.Len(t, state, 2)
	require.Len(t, state["alice"].Metas, 2)
	require.Equal(t, "claude", state["alice"].Metas[1].CurrentAgent)
	require.Empty(t, state["alice"].Metas[0].CurrentAgent)
	require.Equal(t, "b1", state["bob"].Metas[0].Ref)
}

func TestMessage_Options(t *testing.T) {
	m := Message(1_700_000_000_000, 1, "agent", "hi", AgentTurn("t1"), InSession("s1"), TurnEvent("text"))
	require.True(t, m.IsAgentTurn())
	require.Equal(t, "s1", m.TurnKey())
	require.Equal(t, "text", m.StringAttr(chat.AttrEvent))

	ts, err := router.Timestamp(m.ID)
	require.NoError(t, err)
	require.Equal(t, m.Timestamp, ts)
	require.Equal(t, time.UnixMilli(1_700_000_000_000).UTC().Format("2006-01-02T15:04:05.000Z"), ts)

	require.Empty(t, Message(1, 0, "a", "b", Unstamped()).Timestamp)
	require.Equal(t, "custom", Message(1, 0, "a", "b", UserID("custom")).UserID)
}
