package session

import (
	"github.com/zjrosen/huddle/internal/chat"
	"github.com/zjrosen/huddle/internal/connection"
	"github.com/zjrosen/huddle/internal/pubsub"
)

// EventKind identifies what changed in a session.
type EventKind int

const (
	// EventNewMessage carries a message for the active channel. Replaced is set
	// when a coalesced agent turn was updated in place.
	EventNewMessage EventKind = iota
	// EventNonActiveMessage fires once per buffered non-system message of an
	// inactive channel. Used for unread counters.
	EventNonActiveMessage
	// EventHistoryLoaded carries the reconciled message list of the active channel.
	EventHistoryLoaded
	EventPresence
	EventGlobalPresence
	EventTyping
	EventSubscribers
	EventStatus
	// EventError reports a connection, join or send failure. Channel names the
	// topic when the failure is scoped to one.
	EventError
	// EventChannelRemoved fires when the local user was removed from a channel.
	EventChannelRemoved
	// EventChannelListStale asks the UI to refresh its channel list.
	EventChannelListStale
	EventDM
	EventDMTyping
	// EventIdentity fires once the local user id becomes known.
	EventIdentity

	numEventKinds
)

func (k EventKind) String() string {
	switch k {
	case EventNewMessage:
		return "new_message"
	case EventNonActiveMessage:
		return "non_active_message"
	case EventHistoryLoaded:
		return "history_loaded"
	case EventPresence:
		return "presence"
	case EventGlobalPresence:
		return "global_presence"
	case EventTyping:
		return "typing"
	case EventSubscribers:
		return "subscribers"
	case EventStatus:
		return "status"
	case EventError:
		return "error"
	case EventChannelRemoved:
		return "channel_removed"
	case EventChannelListStale:
		return "channel_list_stale"
	case EventDM:
		return "dm"
	case EventDMTyping:
		return "dm_typing"
	case EventIdentity:
		return "identity"
	default:
		return "unknown"
	}
}

// Event is a notification from the session. Only the fields relevant to Kind
// are set.
type Event struct {
	Kind     EventKind
	Channel  string
	Message  chat.Message
	Messages []chat.Message
	Replaced bool
	Users    []string
	Presence chat.PresenceState
	DM       chat.DmConversation
	Status   connection.Status
	Err      error
}

// events holds one ordered observer list per kind and a broker for
// asynchronous consumers.
type events struct {
	observers [numEventKinds]pubsub.Observers[Event]
	broker    *pubsub.Broker[Event]
}

func newEvents() *events {
	return &events{broker: pubsub.NewBrokerWithBuffer[Event](256)}
}

func (e *events) emit(evs ...Event) {
	for _, ev := range evs {
		if ev.Kind < 0 || ev.Kind >= numEventKinds {
			continue
		}
		e.observers[ev.Kind].Notify(ev)
		e.broker.Publish(ev)
	}
}
