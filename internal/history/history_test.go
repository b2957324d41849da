package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/router"
)

func at(id string, ms int64) chat.Message {
	return chat.Message{
		ID:        id,
		Username:  "alice",
		Content:   "content " + id,
		Type:      chat.MessageUser,
		Timestamp: router.FormatMillis(ms),
	}
}

func fragment(id string, ms int64, author, turnID, content string) chat.Message {
	return chat.Message{
		ID:        id,
		Username:  author,
		Content:   content,
		Type:      chat.MessageAgentTurn,
		Timestamp: router.FormatMillis(ms),
		Attributes: map[string]any{
			chat.AttrTurnID: turnID,
			chat.AttrEvent:  "text",
		},
	}
}

func ids(msgs []chat.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func TestMerge_DedupFirstOccurrenceWins(t *testing.T) {
	hist := []chat.Message{at("a", 1), at("b", 2)}
	dup := at("b", 2)
	dup.Content = "from buffer"
	buffered := []chat.Message{dup, at("c", 3)}

	got := Merge(hist, buffered)

	require.Equal(t, []string{"a", "b", "c"}, ids(got))
	require.Equal(t, "content b", got[1].Content, "history copy must win")
}

func TestMerge_SortsByTimestampStable(t *testing.T) {
	hist := []chat.Message{at("a", 5), at("b", 1)}
	buffered := []chat.Message{at("c", 3), at("d", 1)}

	got := Merge(hist, buffered)

	require.Equal(t, []string{"b", "d", "c", "a"}, ids(got))
}

func TestMerge_EmptyInputs(t *testing.T) {
	require.Empty(t, Merge(nil, nil))
	require.Equal(t, []string{"a"}, ids(Merge(nil, []chat.Message{at("a", 1)})))
}

func TestCoalesce_FoldsConsecutiveFragments(t *testing.T) {
	msgs := []chat.Message{
		fragment("1", 1, "bot", "t1", "Hel"),
		fragment("2", 2, "bot", "t1", "Hello"),
		fragment("3", 3, "bot", "t1", "Hello world"),
	}

	got := Coalesce(msgs, "alice")

	require.Len(t, got, 1)
	require.Equal(t, "1", got[0].ID, "group keeps the first fragment's id")
	require.Equal(t, "Hello world", got[0].Content)
	require.Equal(t, []string{"Hel", "Hello", "Hello world"}, TurnContents(got[0]))
	require.Equal(t, []string{"text", "text", "text"}, TurnEvents(got[0]))
}

func TestCoalesce_SessionIDGroupsAcrossTurnIDs(t *testing.T) {
	a := fragment("1", 1, "bot", "t1", "thinking")
	a.Attributes[chat.AttrSessionID] = "s1"
	a.Attributes[chat.AttrEvent] = "thought"
	b := fragment("2", 2, "bot", "t2", "answer")
	b.Attributes[chat.AttrSessionID] = "s1"

	got := Coalesce([]chat.Message{a, b}, "alice")

	require.Len(t, got, 1)
	require.Equal(t, []string{"thought", "text"}, TurnEvents(got[0]))
}

func TestCoalesce_InterveningMessageBreaksGroup(t *testing.T) {
	msgs := []chat.Message{
		fragment("1", 1, "bot", "t1", "a"),
		at("x", 2),
		fragment("2", 3, "bot", "t1", "b"),
	}

	got := Coalesce(msgs, "alice")

	require.Equal(t, []string{"1", "x", "2"}, ids(got))
}

func TestCoalesce_DifferentAuthorOrTurnNotMerged(t *testing.T) {
	msgs := []chat.Message{
		fragment("1", 1, "bot", "t1", "a"),
		fragment("2", 2, "other-bot", "t1", "b"),
		fragment("3", 3, "other-bot", "t2", "c"),
	}

	require.Len(t, Coalesce(msgs, "alice"), 3)
}

func TestCoalesce_ViewerFragmentsPassThrough(t *testing.T) {
	msgs := []chat.Message{
		fragment("1", 1, "alice", "t1", "a"),
		fragment("2", 2, "alice", "t1", "ab"),
	}

	got := Coalesce(msgs, "alice")

	require.Len(t, got, 2)
	require.Nil(t, got[0].Attributes[chat.AttrTurnContents])
}

func TestCoalesce_DoesNotMutateInput(t *testing.T) {
	msgs := []chat.Message{
		fragment("1", 1, "bot", "t1", "a"),
		fragment("2", 2, "bot", "t1", "ab"),
	}

	_ = Coalesce(msgs, "alice")

	require.Equal(t, "a", msgs[0].Content)
	require.NotContains(t, msgs[0].Attributes, chat.AttrTurnContents)
}

func TestStringList_DecodedJSON(t *testing.T) {
	m := chat.Message{Attributes: map[string]any{chat.AttrTurnContents: []any{"a", "b", 3}}}
	require.Equal(t, []string{"a", "b"}, TurnContents(m))
}

func TestTimeline_AppendFoldsLiveTurn(t *testing.T) {
	tl := NewTimeline("general", "alice", []chat.Message{at("h1", 1)}, nil)

	_, replaced, ok := tl.Append(fragment("f1", 2, "bot", "t1", "He"))
	require.True(t, ok)
	require.False(t, replaced)

	got, replaced, ok := tl.Append(fragment("f2", 3, "bot", "t1", "Hey"))
	require.True(t, ok)
	require.True(t, replaced)
	require.Equal(t, "Hey", got.Content)
	require.Equal(t, 2, tl.Len())

	_, _, ok = tl.Append(fragment("f2", 3, "bot", "t1", "Hey"))
	require.False(t, ok, "duplicate id is ignored")
}

func TestTimeline_PrependOlderPage(t *testing.T) {
	tl := NewTimeline("general", "alice", []chat.Message{at("c", 3)}, []chat.Message{at("d", 4)})

	tl.Prepend([]chat.Message{at("a", 1), at("b", 2), at("c", 3)})

	require.Equal(t, []string{"a", "b", "c", "d"}, ids(tl.Messages()))
	oldest, ok := tl.Oldest()
	require.True(t, ok)
	require.Equal(t, "a", oldest)
}

// ============================================================================
// Property-Based Tests
// ============================================================================

func genMessages(t *rapid.T, label string) []chat.Message {
	n := rapid.IntRange(0, 20).Draw(t, label+"-n")
	out := make([]chat.Message, 0, n)
	for i := 0; i < n; i++ {
		id := rapid.SampledFrom([]string{"a", "b", "c", "d", "e", "f", "g", "h"}).Draw(t, fmt.Sprintf("%s-id-%d", label, i))
		ms := rapid.Int64Range(0, 10).Draw(t, fmt.Sprintf("%s-ms-%d", label, i))
		out = append(out, at(id, ms))
	}
	return out
}

func TestProperty_MergeIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		hist := genMessages(t, "hist")
		buffered := genMessages(t, "buf")

		once := Merge(hist, buffered)
		twice := Merge(once, buffered)

		require.Equal(t, once, twice)

		seen := map[string]bool{}
		for i, m := range once {
			require.False(t, seen[m.ID], "duplicate id %s", m.ID)
			seen[m.ID] = true
			if i > 0 {
				require.LessOrEqual(t, once[i-1].Timestamp, m.Timestamp)
			}
		}
	})
}

func TestProperty_TurnFragmentsCoalesceToOne(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 30).Draw(t, "n")
		msgs := make([]chat.Message, 0, n)
		for i := 0; i < n; i++ {
			msgs = append(msgs, fragment(fmt.Sprintf("f%d", i), int64(i), "bot", "turn", fmt.Sprintf("c%d", i)))
		}

		// Both batch folding and live appends must agree.
		batch := Coalesce(msgs, "alice")
		tl := NewTimeline("general", "alice", nil, nil)
		for _, m := range msgs {
			tl.Append(m)
		}

		for _, got := range [][]chat.Message{batch, tl.Messages()} {
			require.Len(t, got, 1)
			contents := TurnContents(got[0])
			require.Len(t, contents, n)
			for i, c := range contents {
				require.Equal(t, fmt.Sprintf("c%d", i), c)
			}
		}
	})
}
