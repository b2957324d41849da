// Package wire encodes and decodes the frames exchanged with the chat backend.
//
// Frames use the Phoenix V2 JSON layout: [join_ref, ref, topic, event, payload].
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Control events.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	// TopicPhoenix carries heartbeats.
	TopicPhoenix = "phoenix"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// ErrMalformedFrame is returned when an inbound frame is not a 5-element array.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a single message on the socket. Empty refs encode as null.
type Frame struct {
	JoinRef string
	Ref     string
	Topic   string
	Event   string
	Payload json.RawMessage
}

// MarshalJSON encodes the frame as a 5-element array.
func (f Frame) MarshalJSON() ([]byte, error) {
	payload := f.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]any{nullable(f.JoinRef), nullable(f.Ref), f.Topic, f.Event, payload})
}

// UnmarshalJSON decodes a 5-element array.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) != 5 {
		return fmt.Errorf("%w: %d elements", ErrMalformedFrame, len(parts))
	}

	var joinRef, ref *string
	if err := json.Unmarshal(parts[0], &joinRef); err != nil {
		return fmt.Errorf("%w: join_ref: %v", ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return fmt.Errorf("%w: ref: %v", ErrMalformedFrame, err)
	}
	var topic, event string
	if err := json.Unmarshal(parts[2], &topic); err != nil {
		return fmt.Errorf("%w: topic: %v", ErrMalformedFrame, err)
	}
	if err := json.Unmarshal(parts[3], &event); err != nil {
		return fmt.Errorf("%w: event: %v", ErrMalformedFrame, err)
	}

	*f = Frame{Topic: topic, Event: event, Payload: parts[4]}
	if joinRef != nil {
		f.JoinRef = *joinRef
	}
	if ref != nil {
		f.Ref = *ref
	}
	return nil
}

// NewFrame builds a frame, marshaling payload.
func NewFrame(joinRef, ref, topic, event string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return Frame{JoinRef: joinRef, Ref: ref, Topic: topic, Event: event, Payload: raw}, nil
}

// Decode parses one inbound frame.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// DecodePayload unmarshals the frame payload into v.
func (f Frame) DecodePayload(v any) error {
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload on %s: %w", f.Event, f.Topic, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Reply is the payload of a phx_reply frame.
type Reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

// OK reports whether the backend accepted the request.
func (r Reply) OK() bool {
	return r.Status == StatusOK
}

// GenericReason is used when an error reply carries no reason.
const GenericReason = "request failed"

// Reason extracts the rejection reason from an error reply.
func (r Reply) Reason() string {
	var body struct {
		Reason string `json:"reason"`
		Error  string `json:"error"`
	}
	if len(r.Response) > 0 && json.Unmarshal(r.Response, &body) == nil {
		if body.Reason != "" {
			return body.Reason
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return GenericReason
}
