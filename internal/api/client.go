// Package api is the HTTP client for the chat backend's REST endpoints:
// paginated channel history and private channel subscriber rosters.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/log"
	"github.com/zjrosen/huddle/internal/router"
	"github.com/zjrosen/huddle/internal/tracing"
)

// DefaultTimeout bounds one HTTP request.
const DefaultTimeout = 15 * time.Second

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.Code, http.StatusText(e.Code), e.Body)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTracer records a span per request.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client calls the backend REST API with bearer-token authentication.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	tracer  trace.Tracer
	timeout time.Duration
}

// New creates a client for baseURL.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    http.DefaultClient,
		tracer:  tracing.Noop(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

// FetchMessages returns up to limit messages of slug, oldest first as the
// backend sends them. A non-empty before restricts the page to messages older
// than that id. Timestamps are derived from the ids.
func (c *Client) FetchMessages(ctx context.Context, slug string, limit int, before string) (msgs []chat.Message, err error) {
	ctx, span := c.tracer.Start(ctx, tracing.SpanHistory, trace.WithAttributes(
		attribute.String(tracing.AttrChannel, slug),
		attribute.Int(tracing.AttrLimit, limit),
	))
	defer func() { tracing.Finish(span, err) }()

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		q.Set("before", before)
	}

	var body messagesResponse
	if err := c.get(ctx, "/api/messages/"+url.PathEscape(slug), q, &body); err != nil {
		return nil, err
	}

	msgs = make([]chat.Message, 0, len(body.Messages))
	for _, m := range body.Messages {
		stamped, err := router.Stamp(m)
		if err != nil {
			log.Warn(log.CatHistory, "message id carries no timestamp", "channel", slug, "id", m.ID, "error", err)
		}
		msgs = append(msgs, stamped)
	}
	span.SetAttributes(attribute.Int(tracing.AttrMessages, len(msgs)))
	return msgs, nil
}

type subscribersResponse struct {
	Subscribers []chat.Subscriber `json:"subscribers"`
}

// FetchSubscribers returns the roster of a private channel.
func (c *Client) FetchSubscribers(ctx context.Context, slug string) (subs []chat.Subscriber, err error) {
	ctx, span := c.tracer.Start(ctx, tracing.SpanRoster, trace.WithAttributes(attribute.String(tracing.AttrChannel, slug)))
	defer func() { tracing.Finish(span, err) }()

	var body subscribersResponse
	if err := c.get(ctx, "/api/channels/"+url.PathEscape(slug)+"/subscribers", nil, &body); err != nil {
		return nil, err
	}
	for i := range body.Subscribers {
		if body.Subscribers[i].Role == "" {
			body.Subscribers[i].Role = chat.RoleMember
		}
	}
	return body.Subscribers, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	log.Debug(log.CatAPI, "request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: http.MethodGet, Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
