package presence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/chat"
)

func TestAggregate_PrefersCurrentAgent(t *testing.T) {
	plain := chat.SessionMeta{Ref: "A", UserID: "u1", OnlineAt: "2026-01-02T00:00:00Z"}
	agent := chat.SessionMeta{Ref: "B", UserID: "u1", OnlineAt: "2026-01-01T00:00:00Z", CurrentAgent: "claude"}

	got := Aggregate(
		chat.PresenceState{"alice": {Metas: []chat.SessionMeta{plain}}},
		chat.PresenceState{"alice": {Metas: []chat.SessionMeta{agent}}},
	)

	require.Len(t, got, 1)
	require.Equal(t, "claude", got[0].Meta.CurrentAgent)
}

func TestAggregate_PrefersLaterOnlineAtWhenTied(t *testing.T) {
	older := chat.SessionMeta{Ref: "A", UserID: "u1", OnlineAt: "2026-01-01T00:00:00Z"}
	newer := chat.SessionMeta{Ref: "B", UserID: "u1", OnlineAt: "2026-01-03T00:00:00Z"}

	got := Aggregate(
		chat.PresenceState{"alice": {Metas: []chat.SessionMeta{newer}}},
		chat.PresenceState{"alice": {Metas: []chat.SessionMeta{older}}},
	)

	require.Len(t, got, 1)
	require.Equal(t, "B", got[0].Meta.Ref)
}

func TestAggregate_UnionAcrossChannels(t *testing.T) {
	got := Aggregate(
		chat.PresenceState{"alice": {Metas: []chat.SessionMeta{{Ref: "A", UserID: "u1"}}}},
		chat.PresenceState{"bob": {Metas: []chat.SessionMeta{{Ref: "B", UserID: "u2"}}}},
	)

	require.Len(t, got, 2)
	require.Equal(t, "alice", got[0].Username)
	require.Equal(t, "bob", got[1].Username)
}

func TestFlatten_OneRowPerUsername(t *testing.T) {
	got := Flatten(chat.PresenceState{
		"alice": {Metas: []chat.SessionMeta{
			{Ref: "A", OnlineAt: "2026-01-01T00:00:00Z"},
			{Ref: "B", OnlineAt: "2026-01-05T00:00:00Z"},
		}},
	})

	require.Len(t, got, 1)
	require.Equal(t, "B", got[0].Meta.Ref)
}
