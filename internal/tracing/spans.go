package tracing

// Span attribute keys.
const (
	AttrTopic      = "chat.topic"
	AttrEvent      = "chat.event"
	AttrChannel    = "chat.channel"
	AttrRef        = "chat.ref"
	AttrURL        = "chat.url"
	AttrLimit      = "chat.history.limit"
	AttrMessages   = "chat.history.messages"
	AttrBuffered   = "chat.history.buffered"
	AttrReplyError = "chat.reply.reason"
)

// Span names.
const (
	SpanConnect   = "conn.connect"
	SpanPush      = "conn.push"
	SpanJoin      = "channel.join"
	SpanHistory   = "history.fetch"
	SpanReconcile = "history.reconcile"
	SpanRoster    = "api.subscribers"
)
