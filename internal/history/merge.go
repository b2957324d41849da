// Package history reconciles paginated history with buffered realtime messages
// and folds streamed agent-turn fragments into single logical messages.
package history

import (
	"slices"
	"strings"

	"github.com/zjrosen/huddle/internal/chat"
)

// Merge concatenates history and buffered, drops repeated ids (first occurrence
// wins) and stable-sorts by timestamp ascending. Messages must already carry a
// derived Timestamp. Merging a result again with the same buffer is a no-op.
func Merge(history, buffered []chat.Message) []chat.Message {
	out := make([]chat.Message, 0, len(history)+len(buffered))
	seen := make(map[string]struct{}, len(history)+len(buffered))
	for _, list := range [][]chat.Message{history, buffered} {
		for _, m := range list {
			if m.ID != "" {
				if _, dup := seen[m.ID]; dup {
					continue
				}
				seen[m.ID] = struct{}{}
			}
			out = append(out, m)
		}
	}
	slices.SortStableFunc(out, func(a, b chat.Message) int {
		return strings.Compare(a.Timestamp, b.Timestamp)
	})
	return out
}
