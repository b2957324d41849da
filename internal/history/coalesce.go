package history

import (
	"slices"

	"github.com/zjrosen/huddle/internal/chat"
)

// defaultTurnEvent labels fragments that carry no event attribute.
const defaultTurnEvent = "text"

// Coalesce folds consecutive agent-turn fragments that share an author and a
// grouping key into one message. Fragments authored by viewer pass through.
func Coalesce(msgs []chat.Message, viewer string) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		out, _ = Append(out, m, viewer)
	}
	return out
}

// Append adds m to list, folding it into the last message when both are
// fragments of the same turn. It reports whether the last message was replaced
// instead of a new one being appended. The input list's elements are never
// mutated in place.
func Append(list []chat.Message, m chat.Message, viewer string) ([]chat.Message, bool) {
	if !coalescible(m, viewer) {
		return append(list, m), false
	}

	if n := len(list); n > 0 {
		last := list[n-1]
		if coalescible(last, viewer) && last.Username == m.Username && last.TurnKey() == m.TurnKey() {
			merged := last.Clone()
			merged.Content = m.Content
			merged.Attributes[chat.AttrTurnEvents] = append(TurnEvents(last), fragmentEvent(m))
			merged.Attributes[chat.AttrTurnContents] = append(TurnContents(last), m.Content)
			out := slices.Clone(list)
			out[n-1] = merged
			return out, true
		}
	}

	first := m.Clone()
	first.Attributes[chat.AttrTurnEvents] = []string{fragmentEvent(m)}
	first.Attributes[chat.AttrTurnContents] = []string{m.Content}
	return append(list, first), false
}

// TurnEvents returns the accumulated event list of a coalesced turn.
func TurnEvents(m chat.Message) []string {
	return stringList(m.Attributes[chat.AttrTurnEvents])
}

// TurnContents returns the accumulated content list of a coalesced turn.
func TurnContents(m chat.Message) []string {
	return stringList(m.Attributes[chat.AttrTurnContents])
}

func coalescible(m chat.Message, viewer string) bool {
	return m.IsAgentTurn() && m.Username != viewer
}

func fragmentEvent(m chat.Message) string {
	if ev := m.StringAttr(chat.AttrEvent); ev != "" {
		return ev
	}
	return defaultTurnEvent
}

// stringList copies v whether it was built in-process or decoded from JSON.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return slices.Clone(list)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
