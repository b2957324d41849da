package router

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/zjrosen/huddle/internal/chat"
)

// idAt builds a UUID whose first 48 bits encode ms and whose remaining bits are rest.
func idAt(ms int64, rest [10]byte) string {
	var u uuid.UUID
	for i := 5; i >= 0; i-- {
		u[i] = byte(ms)
		ms >>= 8
	}
	copy(u[6:], rest[:])
	return u.String()
}

func TestTimestamp_KnownValue(t *testing.T) {
	id := idAt(1700000000123, [10]byte{0x70, 0x01, 0x80})

	ts, err := Timestamp(id)

	require.NoError(t, err)
	require.Equal(t, "2023-11-14T22:13:20.123Z", ts)
}

func TestTimestamp_UUIDv7(t *testing.T) {
	u, err := uuid.NewV7()
	require.NoError(t, err)

	ts, err := Timestamp(u.String())
	require.NoError(t, err)

	parsed, err := time.Parse(TimestampLayout, ts)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), parsed, 5*time.Second)
}

func TestTimestamp_InvalidID(t *testing.T) {
	_, err := Timestamp("not-an-id")
	require.Error(t, err)
}

func TestStamp_IgnoresTransmittedTimestamp(t *testing.T) {
	msg := chat.Message{ID: idAt(0, [10]byte{}), Timestamp: "2099-01-01T00:00:00.000Z"}

	got, err := Stamp(msg)

	require.NoError(t, err)
	require.Equal(t, "1970-01-01T00:00:00.000Z", got.Timestamp)
}

func TestRoute(t *testing.T) {
	tests := []struct {
		name    string
		slug    string
		active  string
		loading bool
		want    Disposition
	}{
		{"active channel", "general", "general", false, Deliver},
		{"inactive channel", "random", "general", false, Buffer},
		{"no active channel", "random", "", false, Buffer},
		{"active channel loading history", "general", "general", true, Buffer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Route(tt.slug, tt.active, tt.loading))
		})
	}
}

func TestNotifiesUnread(t *testing.T) {
	require.True(t, NotifiesUnread(chat.Message{Type: chat.MessageUser}, "random", "general"))
	require.False(t, NotifiesUnread(chat.Message{Type: chat.MessageSystem}, "random", "general"))
	require.False(t, NotifiesUnread(chat.Message{Type: chat.MessageUser}, "general", "general"))
}

func TestProperty_TimestampIndependentOfTrailingBits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.Int64Range(0, 1<<47).Draw(t, "ms")
		var a, b [10]byte
		copy(a[:], rapid.SliceOfN(rapid.Byte(), 10, 10).Draw(t, "a"))
		copy(b[:], rapid.SliceOfN(rapid.Byte(), 10, 10).Draw(t, "b"))

		tsA, err := Timestamp(idAt(ms, a))
		require.NoError(t, err)
		tsB, err := Timestamp(idAt(ms, b))
		require.NoError(t, err)

		require.Equal(t, tsA, tsB)
		require.Equal(t, time.UnixMilli(ms).UTC().Format(TimestampLayout), tsA)
	})
}

func TestProperty_TimestampOrderMatchesStringOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Int64Range(0, MaxMillis).Draw(t, "x")
		y := rapid.Int64Range(0, MaxMillis).Draw(t, "y")
		a, b := FormatMillis(x), FormatMillis(y)
		require.Equal(t, x < y, a < b)
	})
}

func TestProperty_TimestampFixedWidthOver48Bits(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.Int64Range(0, 1<<48-1).Draw(t, "x")
		y := rapid.Int64Range(0, 1<<48-1).Draw(t, "y")
		a, b := FormatMillis(x), FormatMillis(y)
		require.Len(t, a, len(TimestampLayout))
		if x <= y {
			require.LessOrEqual(t, a, b)
		}
	})
}

func TestFormatMillis_ClampsPastYear9999(t *testing.T) {
	require.Equal(t, "9999-12-31T23:59:59.999Z", FormatMillis(MaxMillis))
	require.Equal(t, "9999-12-31T23:59:59.999Z", FormatMillis(1<<48-1))

	var tail [10]byte
	ts, err := Timestamp(idAt(1<<48-1, tail))
	require.NoError(t, err)
	require.Equal(t, "9999-12-31T23:59:59.999Z", ts)
}
