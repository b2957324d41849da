// Package presence applies membership snapshots and diffs to per-topic presence
// maps. Every function is pure: inputs are never mutated.
package presence

import (
	"slices"

	"github.com/zjrosen/huddle/internal/chat"
)

// Sync replaces state with a full snapshot, dropping entries without metas.
func Sync(snapshot chat.PresenceState) chat.PresenceState {
	out := make(chat.PresenceState, len(snapshot))
	for username, entry := range snapshot {
		metas := dedupByRef(entry.Metas)
		if len(metas) == 0 {
			continue
		}
		out[username] = chat.PresenceEntry{Metas: metas}
	}
	return out
}

// ApplyDiff returns the state that results from applying diff to state.
// Leaves are processed before joins so that a diff replacing one session with
// another for the same username yields only the new session.
func ApplyDiff(state chat.PresenceState, diff chat.PresenceDiff) chat.PresenceState {
	out := Clone(state)

	for username, leave := range diff.Leaves {
		entry, ok := out[username]
		if !ok {
			continue
		}
		gone := make(map[string]struct{}, len(leave.Metas))
		for _, m := range leave.Metas {
			gone[m.Ref] = struct{}{}
		}
		metas := slices.DeleteFunc(entry.Metas, func(m chat.SessionMeta) bool {
			_, drop := gone[m.Ref]
			return drop
		})
		if len(metas) == 0 {
			delete(out, username)
			continue
		}
		out[username] = chat.PresenceEntry{Metas: metas}
	}

	for username, join := range diff.Joins {
		metas := out[username].Metas
		for _, m := range join.Metas {
			if i := slices.IndexFunc(metas, func(x chat.SessionMeta) bool { return x.Ref == m.Ref }); i >= 0 {
				metas[i] = m
				continue
			}
			metas = append(metas, m)
		}
		if len(metas) == 0 {
			continue
		}
		out[username] = chat.PresenceEntry{Metas: metas}
	}

	return out
}

// Clone deep-copies a presence state.
func Clone(state chat.PresenceState) chat.PresenceState {
	out := make(chat.PresenceState, len(state))
	for username, entry := range state {
		out[username] = chat.PresenceEntry{Metas: slices.Clone(entry.Metas)}
	}
	return out
}

// Usernames returns the sorted usernames present in state.
func Usernames(state chat.PresenceState) []string {
	names := make([]string, 0, len(state))
	for username := range state {
		names = append(names, username)
	}
	slices.Sort(names)
	return names
}

// FindUserID returns the user id of username's first session, if present.
func FindUserID(state chat.PresenceState, username string) (string, bool) {
	entry, ok := state[username]
	if !ok {
		return "", false
	}
	for _, m := range entry.Metas {
		if m.UserID != "" {
			return m.UserID, true
		}
	}
	return "", false
}

func dedupByRef(metas []chat.SessionMeta) []chat.SessionMeta {
	out := make([]chat.SessionMeta, 0, len(metas))
	for _, m := range metas {
		if i := slices.IndexFunc(out, func(x chat.SessionMeta) bool { return x.Ref == m.Ref }); i >= 0 {
			out[i] = m
			continue
		}
		out = append(out, m)
	}
	return out
}
