package tracing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// FileExporter appends one JSON line per finished span. It implements
// sdktrace.SpanExporter.
type FileExporter struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// NewFileExporter opens path for appending, creating parent directories.
func NewFileExporter(path string) (*FileExporter, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) // #nosec G304 -- path is cleaned above
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	return newWriterExporter(f), nil
}

func newWriterExporter(w io.WriteCloser) *FileExporter {
	return &FileExporter{w: w}
}

// ExportSpans implements sdktrace.SpanExporter.
func (e *FileExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.w == nil {
		return nil
	}
	for _, span := range spans {
		line, err := json.Marshal(recordOf(span))
		if err != nil {
			return fmt.Errorf("encode span %s: %w", span.Name(), err)
		}
		if _, err := e.w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("write span %s: %w", span.Name(), err)
		}
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter. Spans exported afterwards are
// discarded.
func (e *FileExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.w == nil {
		return nil
	}
	err := e.w.Close()
	e.w = nil
	return err
}

// SpanRecord is one exported span. Chat attributes (the chat.* keys) are
// lifted out of Attributes so records can be filtered by channel or topic.
type SpanRecord struct {
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Start      time.Time      `json:"start"`
	DurationMs float64        `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
	Topic      string         `json:"topic,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Event      string         `json:"event,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Events     []string       `json:"events,omitempty"`
}

func recordOf(span sdktrace.ReadOnlySpan) SpanRecord {
	rec := SpanRecord{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		Start:      span.StartTime().UTC(),
		DurationMs: float64(span.EndTime().Sub(span.StartTime()).Microseconds()) / 1000,
	}
	if p := span.Parent(); p.IsValid() {
		rec.ParentID = p.SpanID().String()
	}
	if st := span.Status(); st.Code == codes.Error {
		rec.Error = st.Description
		if rec.Error == "" {
			rec.Error = "error"
		}
	}
	for _, kv := range span.Attributes() {
		switch kv.Key {
		case AttrTopic:
			rec.Topic = kv.Value.Emit()
		case AttrChannel:
			rec.Channel = kv.Value.Emit()
		case AttrEvent:
			rec.Event = kv.Value.Emit()
		default:
			if rec.Attributes == nil {
				rec.Attributes = make(map[string]any)
			}
			rec.Attributes[strings.TrimPrefix(string(kv.Key), "chat.")] = kv.Value.AsInterface()
		}
	}
	for _, ev := range span.Events() {
		rec.Events = append(rec.Events, eventLine(ev.Name, ev.Attributes))
	}
	return rec
}

// eventLine renders a span event as "name key=value ...".
func eventLine(name string, attrs []attribute.KeyValue) string {
	var b strings.Builder
	b.WriteString(name)
	for _, kv := range attrs {
		fmt.Fprintf(&b, " %s=%s", kv.Key, kv.Value.Emit())
	}
	return b.String()
}
