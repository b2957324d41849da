// Package router decides where an inbound channel message goes and derives its
// ordering timestamp from the message identifier.
package router

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zjrosen/huddle/internal/chat"
)

// TimestampLayout is fixed width and zero padded, so timestamps in this layout
// order correctly under plain string comparison.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp decodes the millisecond epoch held in the leading 48 bits of a
// time-ordered identifier and formats it with TimestampLayout. The remaining
// bits of the identifier are ignored.
func Timestamp(id string) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("parse message id %q: %w", id, err)
	}
	return FormatMillis(Millis(u)), nil
}

// Millis returns the millisecond epoch stored in the first 48 bits of u.
func Millis(u uuid.UUID) int64 {
	var ms int64
	for _, b := range u[:6] {
		ms = ms<<8 | int64(b)
	}
	return ms
}

// MaxMillis is the last instant TimestampLayout can hold at fixed width,
// 9999-12-31T23:59:59.999Z. A 48-bit epoch can exceed it.
const MaxMillis int64 = 253402300799999

// FormatMillis renders a millisecond epoch in TimestampLayout. Epochs past
// MaxMillis are clamped to it.
func FormatMillis(ms int64) string {
	return time.UnixMilli(min(ms, MaxMillis)).UTC().Format(TimestampLayout)
}

// Stamp returns msg with Timestamp derived from its ID. Any timestamp the
// message already carried is discarded.
func Stamp(msg chat.Message) (chat.Message, error) {
	ts, err := Timestamp(msg.ID)
	msg.Timestamp = ts
	return msg, err
}

// Disposition is the routing decision for one inbound message.
type Disposition int

const (
	// Deliver dispatches the message to the active view immediately.
	Deliver Disposition = iota
	// Buffer stores the message in the topic's realtime buffer.
	Buffer
)

func (d Disposition) String() string {
	switch d {
	case Deliver:
		return "delivered"
	case Buffer:
		return "buffered"
	default:
		return "unknown"
	}
}

// Route decides the disposition of a message for slug given the active slug.
// loading is true while the active channel's history is being fetched; its
// live messages are buffered so the merge can fold them in.
func Route(slug, active string, loading bool) Disposition {
	if slug == active && !loading {
		return Deliver
	}
	return Buffer
}

// NotifiesUnread reports whether a buffered message should fire the
// non-active message callback. System messages never count as unread.
func NotifiesUnread(msg chat.Message, slug, active string) bool {
	return slug != active && !msg.IsSystem()
}
