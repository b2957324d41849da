// Package log provides structured logging for huddle.
// Entries carry a level, a category and key=value fields. They are written as
// single lines to a file sink and fanned out to in-process subscribers.
// Nothing is logged until Init or InitWriter is called.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/huddle/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, bool) {
	for i, name := range levelNames {
		if strings.EqualFold(s, name) {
			return Level(i), true
		}
	}
	return LevelDebug, false
}

// Category groups related log messages.
type Category string

const (
	CatConn     Category = "conn"     // Socket lifecycle, heartbeats, reconnects
	CatPresence Category = "presence" // Presence snapshots and diffs
	CatChannel  Category = "channel"  // Topic join/leave and per-topic state
	CatRouter   Category = "router"   // Inbound message routing
	CatHistory  Category = "history"  // History fetch and reconciliation
	CatDM       Category = "dm"       // Direct-message subchannel
	CatSession  Category = "session"  // Session facade operations
	CatAPI      Category = "api"      // HTTP endpoints
	CatConfig   Category = "config"   // Configuration loading/saving
	CatWatcher  Category = "watcher"  // Config file watcher events
	CatCache    Category = "cache"    // cache operations
)

// Field is one key=value pair of an entry.
type Field struct {
	Key   string
	Value any
}

// Entry is one log record.
type Entry struct {
	Time     time.Time
	Level    Level
	Category Category
	Message  string
	Fields   []Field
}

// String renders the entry as one line:
//
//	2025-12-06T10:45:00.123 [WARN] [channel] Join failed slug=general error="timed out"
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02T15:04:05.000"))
	fmt.Fprintf(&b, " [%s] [%s] %s", e.Level, e.Category, e.Message)
	for _, f := range e.Fields {
		b.WriteByte(' ')
		b.WriteString(f.Key)
		b.WriteByte('=')
		b.WriteString(formatValue(f.Value))
	}
	return b.String()
}

// Field returns the value of key and whether it was set.
func (e Entry) Field(key string) (any, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func formatValue(v any) string {
	var s string
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case error:
		s = v.Error()
	case string:
		s = v
	case fmt.Stringer:
		s = v.String()
	default:
		s = fmt.Sprint(v)
	}
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// toFields pairs up alternating keys and values. A trailing key without a
// value is kept with the value "<missing>".
func toFields(kv []any) []Field {
	if len(kv) == 0 {
		return nil
	}
	fields := make([]Field, 0, (len(kv)+1)/2)
	for i := 0; i < len(kv); i += 2 {
		key := fmt.Sprint(kv[i])
		if i+1 == len(kv) {
			fields = append(fields, Field{Key: key, Value: "<missing>"})
			break
		}
		fields = append(fields, Field{Key: key, Value: kv[i+1]})
	}
	return fields
}

// Logger writes entries to a sink and publishes them.
type Logger struct {
	mu       sync.Mutex
	closer   io.Closer
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[Entry]
}

var (
	defaultMu     sync.RWMutex
	defaultLogger *Logger
)

func newLogger(w io.Writer, c io.Closer) *Logger {
	return &Logger{
		writer:   w,
		closer:   c,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[Entry](),
	}
}

// Init opens path for appending and installs it as the global sink.
// The returned func closes the file; a later Init replaces the sink.
func Init(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path is the user's debug log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := install(newLogger(f, f))
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closer != nil {
			_ = l.closer.Close()
			l.closer = nil
			l.writer = nil
		}
	}, nil
}

// InitWriter installs w, e.g. stderr or a test buffer, as the global sink.
func InitWriter(w io.Writer) {
	install(newLogger(w, nil))
}

func install(l *Logger) *Logger {
	defaultMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()
	if prev != nil {
		prev.broker.Close()
	}
	return l
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.enabled = enabled
		l.mu.Unlock()
	}
}

// SetMinLevel drops entries below level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.mu.Lock()
		l.minLevel = level
		l.mu.Unlock()
	}
}

// Subscribe streams entries logged after the call until ctx is cancelled.
// It returns nil before Init.
func Subscribe(ctx context.Context) <-chan pubsub.Event[Entry] {
	l := current()
	if l == nil {
		return nil
	}
	return l.broker.Subscribe(ctx)
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	write(LevelDebug, cat, msg, fields)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	write(LevelInfo, cat, msg, fields)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	write(LevelWarn, cat, msg, fields)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	write(LevelError, cat, msg, fields)
}

// ErrorErr logs at error level with err as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	write(LevelError, cat, msg, append(fields, "error", err))
}

func write(level Level, cat Category, msg string, kv []any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	if !l.enabled || level < l.minLevel {
		l.mu.Unlock()
		return
	}
	entry := Entry{Time: time.Now(), Level: level, Category: cat, Message: msg, Fields: toFields(kv)}
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry.String()+"\n")
	}
	l.mu.Unlock()

	l.broker.Publish(entry)
}
