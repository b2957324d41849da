package testutil

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/router"
)

// IDAt returns a UUIDv7 whose timestamp is ms and whose random bits are
// derived from seq, so ids at the same millisecond stay distinct.
func IDAt(ms int64, seq uint16) string {
	var u uuid.UUID
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(ms))
	copy(u[:6], buf[2:])
	u[6] = 0x70
	u[8] = 0x80
	binary.BigEndian.PutUint16(u[14:], seq)
	return u.String()
}

// Message returns a stamped user message at ms.
func Message(ms int64, seq uint16, username, content string, opts ...MessageOption) chat.Message {
	msg := chat.Message{
		ID:       IDAt(ms, seq),
		UserID:   "u-" + username,
		Username: username,
		Content:  content,
		Type:     chat.MessageUser,
	}
	msg.Timestamp = router.FormatMillis(ms)
	for _, opt := range opts {
		opt(&msg)
	}
	return msg
}

// SystemMessage returns a stamped system message at ms.
func SystemMessage(ms int64, seq uint16, content string) chat.Message {
	msg := Message(ms, seq, "system", content)
	msg.Type = chat.MessageSystem
	return msg
}

// Meta builds a presence meta.
func Meta(ref, userID, onlineAt string) chat.SessionMeta {
	return chat.SessionMeta{Ref: ref, UserID: userID, OnlineAt: onlineAt}
}

// Presence builds a presence state with one meta per username.
func Presence(metas map[string]chat.SessionMeta) chat.PresenceState {
	state := make(chat.PresenceState, len(metas))
	for username, m := range metas {
		state[username] = chat.PresenceEntry{Metas: []chat.SessionMeta{m}}
	}
	return state
}
