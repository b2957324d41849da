package cmd

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/session"
)

func TestFormatMessage(t *testing.T) {
	user := chat.Message{ID: "1", Username: "alice", Content: "hi", Timestamp: "2025-01-02T03:04:05.000Z"}
	line := formatMessage(user, "me")
	require.Contains(t, line, "03:04:05")
	require.Contains(t, line, "alice:")
	require.Contains(t, line, "hi")

	sys := chat.Message{Username: "system", Content: "alice joined", Type: chat.MessageSystem}
	line = formatMessage(sys, "me")
	require.Contains(t, line, "--:--:--")
	require.Contains(t, line, "* alice joined")

	turn := chat.Message{Username: "bot", Content: "thinking", Type: chat.MessageAgentTurn,
		Attributes: map[string]any{chat.AttrTurnID: "t1"}}
	require.Contains(t, formatMessage(turn, "me"), "bot ▸")
}

func TestRenderEvent(t *testing.T) {
	msg := chat.Message{ID: "1", Username: "bob", Content: "hello"}

	t.Run("history prints a header and every message", func(t *testing.T) {
		lines := renderEvent(session.Event{Kind: session.EventHistoryLoaded, Channel: "general",
			Messages: []chat.Message{msg, msg}}, "me")
		require.Len(t, lines, 3)
		require.Contains(t, lines[0], "#general (2 messages)")
	})

	t.Run("history failure adds an error line", func(t *testing.T) {
		lines := renderEvent(session.Event{Kind: session.EventHistoryLoaded, Channel: "general",
			Err: errors.New("502")}, "me")
		require.Len(t, lines, 2)
		require.Contains(t, lines[1], "history unavailable: 502")
	})

	t.Run("replaced agent turn is marked", func(t *testing.T) {
		lines := renderEvent(session.Event{Kind: session.EventNewMessage, Message: msg, Replaced: true}, "me")
		require.Len(t, lines, 1)
		require.Contains(t, lines[0], "↳")
	})

	t.Run("inactive channel prints a notice", func(t *testing.T) {
		lines := renderEvent(session.Event{Kind: session.EventNonActiveMessage, Channel: "random", Message: msg}, "me")
		require.Equal(t, []string{noticeStyle.Render("[#random] bob: hello")}, lines)
	})

	t.Run("read dm renders nothing", func(t *testing.T) {
		require.Empty(t, renderEvent(session.Event{Kind: session.EventDM, DM: chat.DmConversation{Slug: "dm-1"}}, "me"))
	})

	t.Run("connected status renders nothing", func(t *testing.T) {
		require.Empty(t, renderEvent(session.Event{Kind: session.EventStatus, Status: connection.StatusConnected}, "me"))
		lines := renderEvent(session.Event{Kind: session.EventStatus, Status: connection.StatusError}, "me")
		require.Len(t, lines, 1)
		require.Contains(t, lines[0], "connection error")
	})

	t.Run("scoped error names the channel", func(t *testing.T) {
		lines := renderEvent(session.Event{Kind: session.EventError, Channel: "general", Err: errors.New("boom")}, "me")
		require.Len(t, lines, 1)
		require.Contains(t, lines[0], "error in general: boom")
	})

	t.Run("presence renders nothing", func(t *testing.T) {
		require.Empty(t, renderEvent(session.Event{Kind: session.EventPresence, Channel: "general"}, "me"))
	})
}

func TestRenderStatusBar(t *testing.T) {
	bar := renderStatusBar(connection.StatusConnected, "general", 3, []string{"alice"})
	require.Contains(t, bar, "connected")
	require.Contains(t, bar, "#general")
	require.Contains(t, bar, "3 online")
	require.Contains(t, bar, "alice is typing")

	bar = renderStatusBar(connection.StatusDisconnected, "", 0, []string{"alice", "bob"})
	require.NotContains(t, bar, "#")
	require.Contains(t, bar, "alice, bob are typing")
}
