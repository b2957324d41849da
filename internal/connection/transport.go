package connection

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

// ProtocolVersion is the Phoenix serializer version requested on connect.
const ProtocolVersion = "2.0.0"

// DefaultReadLimit bounds a single inbound frame.
const DefaultReadLimit = 4 << 20

// Stream is one open duplex connection carrying text frames.
type Stream interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Transport opens streams. It is injected into the Socket so tests can run
// against an in-memory backend.
type Transport interface {
	Dial(ctx context.Context, url string) (Stream, error)
}

// WebSocketTransport dials real WebSocket servers.
type WebSocketTransport struct {
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial implements Transport.
func (t WebSocketTransport) Dial(ctx context.Context, rawURL string) (Stream, error) {
	conn, _, err := websocket.Dial(ctx, rawURL, nil)
	if err != nil {
		return nil, err
	}
	limit := t.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &wsStream{conn: conn}, nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Read(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

func (s *wsStream) Write(ctx context.Context, data []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, data)
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// SocketURL builds the socket endpoint for a server URL:
// {server}/websocket?token=...&vsn=2.0.0. http(s) schemes map to ws(s).
func SocketURL(server, token string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/websocket") {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/websocket"
	}
	q := u.Query()
	q.Set("token", token)
	q.Set("vsn", ProtocolVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
