package presence

import (
	"cmp"
	"slices"
	"strings"

	"github.com/zjrosen/huddle/internal/chat"
)

// Aggregate merges several per-channel presence maps into one row per user id.
// It is the fallback for when the status topic is unavailable; per-channel maps
// miss users who are only present elsewhere.
//
// When the same user id appears with conflicting metadata, the meta carrying a
// current_agent tag wins; otherwise the later online_at wins.
func Aggregate(states ...chat.PresenceState) []chat.OnlineUser {
	best := make(map[string]chat.OnlineUser)
	for _, state := range states {
		for username, entry := range state {
			for _, m := range entry.Metas {
				key := m.UserID
				if key == "" {
					key = username
				}
				cur, ok := best[key]
				if !ok || prefer(m, cur.Meta) {
					best[key] = chat.OnlineUser{Username: username, Meta: m}
				}
			}
		}
	}

	out := make([]chat.OnlineUser, 0, len(best))
	for _, u := range best {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b chat.OnlineUser) int {
		return cmp.Or(
			strings.Compare(a.Username, b.Username),
			strings.Compare(a.Meta.UserID, b.Meta.UserID),
		)
	})
	return out
}

// Flatten turns a single presence state into one row per username, picking
// each username's preferred session.
func Flatten(state chat.PresenceState) []chat.OnlineUser {
	out := make([]chat.OnlineUser, 0, len(state))
	for _, username := range Usernames(state) {
		metas := state[username].Metas
		if len(metas) == 0 {
			continue
		}
		pick := metas[0]
		for _, m := range metas[1:] {
			if prefer(m, pick) {
				pick = m
			}
		}
		out = append(out, chat.OnlineUser{Username: username, Meta: pick})
	}
	return out
}

// prefer reports whether candidate should replace current.
func prefer(candidate, current chat.SessionMeta) bool {
	ca, cu := candidate.CurrentAgent != "", current.CurrentAgent != ""
	if ca != cu {
		return ca
	}
	return candidate.OnlineAt > current.OnlineAt
}
