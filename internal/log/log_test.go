package log

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEntryString_QuotesAndPairs(t *testing.T) {
	e := Entry{
		Time:     time.Date(2025, 12, 6, 10, 45, 0, 123e6, time.UTC),
		Level:    LevelWarn,
		Category: CatChannel,
		Message:  "Join failed",
		Fields:   toFields([]any{"slug", "general", "error", errors.New("timed out"), "empty", "", "orphan"}),
	}
	require.Equal(t,
		`2025-12-06T10:45:00.123 [WARN] [channel] Join failed slug=general error="timed out" empty="" orphan=<missing>`,
		e.String())

	v, ok := e.Field("slug")
	require.True(t, ok)
	require.Equal(t, "general", v)
	_, ok = e.Field("nope")
	require.False(t, ok)
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"debug", "INFO", "Warn", "error"} {
		lvl, ok := ParseLevel(name)
		require.True(t, ok, name)
		require.True(t, strings.EqualFold(name, lvl.String()))
	}
	_, ok := ParseLevel("loud")
	require.False(t, ok)
	require.Equal(t, "UNKNOWN", Level(42).String())
}

func TestWriter_FiltersAndPublishes(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf)
	t.Cleanup(func() { InitWriter(nil) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	entries := Subscribe(ctx)

	SetMinLevel(LevelInfo)
	Debug(CatConn, "dropped")
	Info(CatConn, "Connected", "url", "ws://x")
	ErrorErr(CatAPI, "Fetch failed", nil)

	SetEnabled(false)
	Error(CatAPI, "silenced")
	SetEnabled(true)

	out := buf.String()
	require.NotContains(t, out, "dropped")
	require.NotContains(t, out, "silenced")
	require.Contains(t, out, "[INFO] [conn] Connected url=ws://x")
	require.Contains(t, out, "[ERROR] [api] Fetch failed error=<nil>")

	first := <-entries
	require.Equal(t, "Connected", first.Payload.Message)
	second := <-entries
	require.Equal(t, LevelError, second.Payload.Level)
}

func TestInit_AppendsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	cleanup, err := Init(path)
	require.NoError(t, err)
	t.Cleanup(func() { InitWriter(nil) })

	Warn(CatConfig, "Config reload failed", "path", "/tmp/x y")
	cleanup()
	cleanup()
	Warn(CatConfig, "after close")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `[WARN] [config] Config reload failed path="/tmp/x y"`)
	require.NotContains(t, string(data), "after close")
}

func TestInit_BadPath(t *testing.T) {
	_, err := Init(filepath.Join(t.TempDir(), "missing", "dir", "debug.log"))
	require.Error(t, err)
}
