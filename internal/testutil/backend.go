package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/wire"
)

// ErrStreamClosed is returned by reads and writes on a closed fake stream.
var ErrStreamClosed = errors.New("stream closed")

type replyMode int

const (
	replyOK replyMode = iota
	replyReject
	replyHold
)

type rule struct {
	mode     replyMode
	reason   string
	response any
}

type broadcast struct {
	event   string
	payload any
}

// Backend is an in-memory Phoenix server implementing connection.Transport.
// By default every join, leave, heartbeat and push is acknowledged with an
// ok reply.
type Backend struct {
	mu         sync.Mutex
	streams    []*Stream
	urls       []string
	received   []wire.Frame
	dialErrs   []error
	joinRules  map[string]rule
	eventRules map[string]rule
	afterJoin  map[string][]broadcast
	silentBeat bool
}

// NewBackend returns a backend that accepts everything.
func NewBackend() *Backend {
	return &Backend{
		joinRules:  make(map[string]rule),
		eventRules: make(map[string]rule),
		afterJoin:  make(map[string][]broadcast),
	}
}

var _ connection.Transport = (*Backend)(nil)

// Dial implements connection.Transport.
func (b *Backend) Dial(_ context.Context, url string) (connection.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.urls = append(b.urls, url)
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		return nil, err
	}
	s := &Stream{
		backend: b,
		inbound: make(chan []byte, 1024),
		closed:  make(chan struct{}),
	}
	b.streams = append(b.streams, s)
	return s, nil
}

// FailDials makes the next n dials fail with err.
func (b *Backend) FailDials(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for range n {
		b.dialErrs = append(b.dialErrs, err)
	}
}

// Dials returns the URLs of every dial attempt, failed ones included.
func (b *Backend) Dials() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.urls...)
}

// RejectJoin makes joins of topic fail with reason.
func (b *Backend) RejectJoin(topic, reason string) {
	b.setJoinRule(topic, rule{mode: replyReject, reason: reason})
}

// HoldJoin makes joins of topic go unanswered so the client times out.
func (b *Backend) HoldJoin(topic string) {
	b.setJoinRule(topic, rule{mode: replyHold})
}

// AcceptJoin acknowledges joins of topic with response.
func (b *Backend) AcceptJoin(topic string, response any) {
	b.setJoinRule(topic, rule{mode: replyOK, response: response})
}

// AfterJoin queues a broadcast sent right after every accepted join of topic.
func (b *Backend) AfterJoin(topic, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.afterJoin[topic] = append(b.afterJoin[topic], broadcast{event: event, payload: payload})
}

// RejectEvent makes pushes of event fail with reason.
func (b *Backend) RejectEvent(event, reason string) {
	b.setEventRule(event, rule{mode: replyReject, reason: reason})
}

// HoldEvent makes pushes of event go unanswered.
func (b *Backend) HoldEvent(event string) {
	b.setEventRule(event, rule{mode: replyHold})
}

// ReplyEvent acknowledges pushes of event with response.
func (b *Backend) ReplyEvent(event string, response any) {
	b.setEventRule(event, rule{mode: replyOK, response: response})
}

// SilenceHeartbeats stops replying to heartbeats.
func (b *Backend) SilenceHeartbeats() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.silentBeat = true
}

func (b *Backend) setJoinRule(topic string, r rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joinRules[topic] = r
}

func (b *Backend) setEventRule(event string, r rule) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eventRules[event] = r
}

// Current returns the most recently dialed stream, or nil.
func (b *Backend) Current() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// Broadcast sends a server-initiated event on topic over the current stream.
func (b *Backend) Broadcast(topic, event string, payload any) error {
	s := b.Current()
	if s == nil {
		return connection.ErrNotConnected
	}
	return s.send(wire.NewFrame("", "", topic, event, payload))
}

// SendRaw writes raw bytes to the client over the current stream.
func (b *Backend) SendRaw(data []byte) error {
	s := b.Current()
	if s == nil {
		return connection.ErrNotConnected
	}
	return s.deliver(data)
}

// Drop closes the current stream from the server side.
func (b *Backend) Drop() {
	if s := b.Current(); s != nil {
		_ = s.Close()
	}
}

// Received returns client frames matching topic and event. Empty strings
// match anything.
func (b *Backend) Received(topic, event string) []wire.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []wire.Frame
	for _, f := range b.received {
		if (topic == "" || f.Topic == topic) && (event == "" || f.Event == event) {
			out = append(out, f)
		}
	}
	return out
}

// WaitFor blocks until a client frame matching topic and event has been
// received and returns the latest match.
func (b *Backend) WaitFor(t testing.TB, topic, event string) wire.Frame {
	t.Helper()
	var got []wire.Frame
	require.Eventually(t, func() bool {
		got = b.Received(topic, event)
		return len(got) > 0
	}, 2*time.Second, 5*time.Millisecond, "no %s frame on %s", event, topic)
	return got[len(got)-1]
}

func (b *Backend) handle(s *Stream, f wire.Frame) {
	b.mu.Lock()
	b.received = append(b.received, f)
	var r rule
	var after []broadcast
	switch f.Event {
	case wire.EventHeartbeat:
		if b.silentBeat {
			r = rule{mode: replyHold}
		}
	case wire.EventJoin:
		r = b.joinRules[f.Topic]
		if r.mode == replyOK {
			after = append(after, b.afterJoin[f.Topic]...)
		}
	case wire.EventLeave:
	default:
		r = b.eventRules[f.Event]
	}
	b.mu.Unlock()

	switch r.mode {
	case replyHold:
		return
	case replyReject:
		_ = s.reply(f, wire.StatusError, map[string]string{"reason": r.reason})
	default:
		resp := r.response
		if resp == nil {
			resp = struct{}{}
		}
		_ = s.reply(f, wire.StatusOK, resp)
	}
	for _, a := range after {
		_ = s.send(wire.NewFrame(f.JoinRef, "", f.Topic, a.event, a.payload))
	}
}

// Stream is one client connection to the fake backend.
type Stream struct {
	backend *Backend
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once
}

// Read implements connection.Stream.
func (s *Stream) Read(ctx context.Context) ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	case <-s.closed:
		return nil, ErrStreamClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write implements connection.Stream.
func (s *Stream) Write(_ context.Context, data []byte) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	f, err := wire.Decode(data)
	if err != nil {
		return err
	}
	s.backend.handle(s, f)
	return nil
}

// Close implements connection.Stream.
func (s *Stream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *Stream) reply(req wire.Frame, status string, response any) error {
	raw, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return s.send(wire.NewFrame(req.JoinRef, req.Ref, req.Topic, wire.EventReply, wire.Reply{Status: status, Response: raw}))
}

func (s *Stream) send(f wire.Frame, err error) error {
	if err != nil {
		return err
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.deliver(data)
}

func (s *Stream) deliver(data []byte) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	case s.inbound <- data:
		return nil
	}
}
