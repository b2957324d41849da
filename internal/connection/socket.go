package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/pubsub"
	"github.com/zjrosen/huddle/internal/tracing"
	"github.com/zjrosen/huddle/internal/wire"
)

// ErrNoTransport is returned by NewSocket when Options.Transport is nil.
var ErrNoTransport = errors.New("connection: transport is required")

type result struct {
	reply wire.Reply
	err   error
}

// Socket is a Phoenix-protocol client over an injected Transport.
//
// Inbound frames are read on a single goroutine and handed to frame observers
// in wire order. Observers run on that goroutine and must not wait on a
// request/reply round trip.
type Socket struct {
	opts Options

	mu           sync.Mutex
	stream       Stream
	status       Status
	lastErr      error
	url          string
	gen          uint64
	cancel       context.CancelFunc
	stop         chan struct{}
	pending      map[string]chan result
	joinRefs     map[string]string
	heartbeatRef string

	writeMu sync.Mutex
	ref     atomic.Uint64

	frames     pubsub.Observers[wire.Frame]
	statuses   pubsub.Observers[StatusChange]
	reconnects pubsub.Observers[int]
}

// NewSocket creates a disconnected socket.
func NewSocket(opts Options) (*Socket, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}
	return &Socket{
		opts:     opts.withDefaults(),
		pending:  make(map[string]chan result),
		joinRefs: make(map[string]string),
	}, nil
}

// OnFrame registers a handler for every non-reply inbound frame.
func (s *Socket) OnFrame(fn func(wire.Frame)) (remove func()) {
	return s.frames.Add(fn)
}

// OnStatus registers a handler for status transitions.
func (s *Socket) OnStatus(fn func(StatusChange)) (remove func()) {
	return s.statuses.Add(fn)
}

// OnReconnect registers a handler called after the stream is re-established
// following a drop. The argument is the number of attempts it took.
func (s *Socket) OnReconnect(fn func(attempts int)) (remove func()) {
	return s.reconnects.Add(fn)
}

// Status returns the current lifecycle state.
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the most recent connection-level error.
func (s *Socket) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Connect dials the backend. It returns once the handshake succeeds or fails;
// drops after that are retried in the background until Disconnect.
func (s *Socket) Connect(ctx context.Context, server, token string) (err error) {
	sockURL, err := SocketURL(server, token)
	if err != nil {
		s.setStatus(StatusError, err)
		return err
	}

	s.mu.Lock()
	if s.status == StatusConnected || s.status == StatusConnecting {
		s.mu.Unlock()
		return nil
	}
	s.url = sockURL
	// A reconnect loop waiting out its backoff belongs to the old stop.
	closeStop(s.stop)
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	s.setStatus(StatusConnecting, nil)

	ctx, span := s.opts.Tracer.Start(ctx, tracing.SpanConnect)
	defer func() { tracing.Finish(span, err) }()

	stream, err := s.opts.Transport.Dial(ctx, sockURL)
	if err != nil {
		err = fmt.Errorf("connect: %w", err)
		log.ErrorErr(log.CatConn, "handshake failed", err)
		s.setStatus(StatusError, err)
		return err
	}
	if !s.attach(stream, stop) {
		_ = stream.Close()
		return ErrDisconnected
	}
	log.Info(log.CatConn, "connected")
	s.statuses.Notify(StatusChange{Status: StatusConnected})
	return nil
}

// Disconnect closes the stream and stops reconnecting. Pending requests fail
// with ErrDisconnected. It never fails.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	closeStop(s.stop)
	stream := s.stream
	s.stream = nil
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	pending := s.takePendingLocked()
	changed := s.status != StatusDisconnected
	s.status = StatusDisconnected
	s.mu.Unlock()

	failPending(pending, ErrDisconnected)
	if stream != nil {
		if err := stream.Close(); err != nil {
			log.Debug(log.CatConn, "close stream", "error", err)
		}
	}
	if changed {
		log.Info(log.CatConn, "disconnected")
		s.statuses.Notify(StatusChange{Status: StatusDisconnected})
	}
}

// Join sends phx_join for topic and waits for the reply.
func (s *Socket) Join(ctx context.Context, topic string, payload any) (resp json.RawMessage, err error) {
	ctx, span := s.opts.Tracer.Start(ctx, tracing.SpanJoin, trace.WithAttributes(attribute.String(tracing.AttrTopic, topic)))
	defer func() { tracing.Finish(span, err) }()

	ref := s.nextRef()
	s.mu.Lock()
	s.joinRefs[topic] = ref
	s.mu.Unlock()

	if payload == nil {
		payload = struct{}{}
	}
	frame, err := wire.NewFrame(ref, ref, topic, wire.EventJoin, payload)
	if err != nil {
		return nil, err
	}
	resp, err = s.request(ctx, frame)
	if err != nil {
		s.mu.Lock()
		if s.joinRefs[topic] == ref {
			delete(s.joinRefs, topic)
		}
		s.mu.Unlock()
		return nil, err
	}
	return resp, nil
}

// Leave sends phx_leave for topic and waits for the reply.
func (s *Socket) Leave(ctx context.Context, topic string) error {
	s.mu.Lock()
	joinRef := s.joinRefs[topic]
	delete(s.joinRefs, topic)
	s.mu.Unlock()

	frame, err := wire.NewFrame(joinRef, s.nextRef(), topic, wire.EventLeave, struct{}{})
	if err != nil {
		return err
	}
	_, err = s.request(ctx, frame)
	return err
}

// Push sends event on topic and waits for the reply. A rejection is returned
// as *ReplyError; no reply within the push timeout is ErrTimeout.
func (s *Socket) Push(ctx context.Context, topic, event string, payload any) (resp json.RawMessage, err error) {
	ctx, span := s.opts.Tracer.Start(ctx, tracing.SpanPush, trace.WithAttributes(
		attribute.String(tracing.AttrTopic, topic),
		attribute.String(tracing.AttrEvent, event),
	))
	defer func() { tracing.Finish(span, err) }()

	frame, err := wire.NewFrame(s.JoinRef(topic), s.nextRef(), topic, event, payload)
	if err != nil {
		return nil, err
	}
	resp, err = s.request(ctx, frame)
	if err != nil {
		s.opts.Metrics.PushFailed(event)
	}
	return resp, err
}

// Cast sends event on topic without waiting for a reply.
func (s *Socket) Cast(ctx context.Context, topic, event string, payload any) error {
	frame, err := wire.NewFrame(s.JoinRef(topic), s.nextRef(), topic, event, payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()
	if stream == nil {
		return ErrNotConnected
	}
	return s.write(ctx, stream, frame)
}

func (s *Socket) request(ctx context.Context, frame wire.Frame) (json.RawMessage, error) {
	ch := make(chan result, 1)

	s.mu.Lock()
	if s.stream == nil || s.status != StatusConnected {
		s.mu.Unlock()
		return nil, ErrNotConnected
	}
	stream := s.stream
	s.pending[frame.Ref] = ch
	s.mu.Unlock()

	if err := s.write(ctx, stream, frame); err != nil {
		s.forget(frame.Ref)
		return nil, fmt.Errorf("write %s: %w", frame.Event, err)
	}

	timer := time.NewTimer(s.opts.PushTimeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if !r.reply.OK() {
			return nil, &ReplyError{Topic: frame.Topic, Event: frame.Event, Reason: r.reply.Reason()}
		}
		return r.reply.Response, nil
	case <-timer.C:
		s.forget(frame.Ref)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.forget(frame.Ref)
		return nil, ctx.Err()
	}
}

func (s *Socket) write(ctx context.Context, stream Stream, frame wire.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return stream.Write(ctx, data)
}

func (s *Socket) forget(ref string) {
	s.mu.Lock()
	delete(s.pending, ref)
	s.mu.Unlock()
}

func (s *Socket) nextRef() string {
	return strconv.FormatUint(s.ref.Add(1), 10)
}

// JoinRef returns the ref of the current join of topic, or "" if not joined.
func (s *Socket) JoinRef(topic string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joinRefs[topic]
}

func (s *Socket) setStatus(status Status, err error) {
	s.mu.Lock()
	s.status = status
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.statuses.Notify(StatusChange{Status: status, Err: err})
}

// attach installs stream as the live stream and starts its loops. It reports
// false if Disconnect was called in the meantime.
func (s *Socket) attach(stream Stream, stop chan struct{}) bool {
	s.mu.Lock()
	select {
	case <-stop:
		s.mu.Unlock()
		return false
	default:
	}
	s.gen++
	gen := s.gen
	replaced := s.stream
	if s.cancel != nil {
		s.cancel()
	}
	s.stream = stream
	s.status = StatusConnected
	s.lastErr = nil
	s.heartbeatRef = ""
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if replaced != nil && replaced != stream {
		log.Warn(log.CatConn, "replacing live stream")
		_ = replaced.Close()
	}
	go s.readLoop(runCtx, stream, gen)
	go s.heartbeatLoop(runCtx, stream, gen)
	return true
}

func (s *Socket) readLoop(ctx context.Context, stream Stream, gen uint64) {
	for {
		data, err := stream.Read(ctx)
		if err != nil {
			s.handleDrop(gen, err)
			return
		}
		frame, err := wire.Decode(data)
		if err != nil {
			log.Warn(log.CatConn, "dropping malformed frame", "error", err)
			continue
		}
		if !s.isCurrent(gen) {
			return
		}
		s.opts.Metrics.FrameReceived(frame.Event)
		if frame.Event == wire.EventReply {
			s.resolve(frame)
			continue
		}
		s.frames.Notify(frame)
	}
}

func (s *Socket) isCurrent(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return gen == s.gen
}

func (s *Socket) resolve(frame wire.Frame) {
	var reply wire.Reply
	decodeErr := frame.DecodePayload(&reply)

	s.mu.Lock()
	if frame.Ref != "" && frame.Ref == s.heartbeatRef {
		s.heartbeatRef = ""
		s.mu.Unlock()
		return
	}
	ch, ok := s.pending[frame.Ref]
	delete(s.pending, frame.Ref)
	s.mu.Unlock()

	if !ok {
		log.Debug(log.CatConn, "dropping reply for unknown ref", "ref", frame.Ref, "topic", frame.Topic)
		return
	}
	ch <- result{reply: reply, err: decodeErr}
}

func (s *Socket) heartbeatLoop(ctx context.Context, stream Stream, gen uint64) {
	ticker := time.NewTicker(s.opts.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		if s.heartbeatRef != "" {
			s.mu.Unlock()
			log.Warn(log.CatConn, "heartbeat unanswered, closing stream")
			_ = stream.Close()
			return
		}
		ref := s.nextRef()
		s.heartbeatRef = ref
		s.mu.Unlock()

		frame, _ := wire.NewFrame("", ref, wire.TopicPhoenix, wire.EventHeartbeat, struct{}{})
		if err := s.write(ctx, stream, frame); err != nil {
			log.Debug(log.CatConn, "heartbeat write failed", "error", err)
		}
	}
}

// handleDrop runs when the read loop of generation gen ends. Drops of a stale
// generation or after Disconnect are ignored.
func (s *Socket) handleDrop(gen uint64, cause error) {
	s.mu.Lock()
	if gen != s.gen || s.stream == nil {
		s.mu.Unlock()
		return
	}
	s.stream = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	pending := s.takePendingLocked()
	err := fmt.Errorf("connection lost: %w", cause)
	s.status = StatusError
	s.lastErr = err
	stop := s.stop
	s.mu.Unlock()

	failPending(pending, ErrDisconnected)
	log.ErrorErr(log.CatConn, "stream dropped", cause)
	s.statuses.Notify(StatusChange{Status: StatusError, Err: err})

	go s.reconnectLoop(stop)
}

func (s *Socket) reconnectLoop(stop chan struct{}) {
	for attempt := 0; ; attempt++ {
		timer := time.NewTimer(BackoffFor(s.opts.Backoff, attempt))
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
		}

		s.mu.Lock()
		sockURL := s.url
		s.status = StatusConnecting
		s.mu.Unlock()
		s.statuses.Notify(StatusChange{Status: StatusConnecting})

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.PushTimeout)
		stream, err := s.opts.Transport.Dial(ctx, sockURL)
		cancel()
		if err != nil {
			log.Warn(log.CatConn, "reconnect failed", "attempt", attempt+1, "error", err)
			select {
			case <-stop:
				return
			default:
			}
			s.setStatus(StatusError, fmt.Errorf("reconnect: %w", err))
			continue
		}
		if !s.attach(stream, stop) {
			_ = stream.Close()
			return
		}

		log.Info(log.CatConn, "reconnected", "attempts", attempt+1)
		s.opts.Metrics.Reconnected()
		s.statuses.Notify(StatusChange{Status: StatusConnected})
		s.reconnects.Notify(attempt + 1)
		return
	}
}

func (s *Socket) takePendingLocked() map[string]chan result {
	pending := s.pending
	s.pending = make(map[string]chan result)
	s.joinRefs = make(map[string]string)
	return pending
}

func closeStop(stop chan struct{}) {
	if stop == nil {
		return
	}
	select {
	case <-stop:
	default:
		close(stop)
	}
}

func failPending(pending map[string]chan result, err error) {
	for _, ch := range pending {
		ch <- result{err: err}
	}
}
