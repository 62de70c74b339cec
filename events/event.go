// Package events defines the events producers hand to the consumer and the
// unbounded FIFO queue that carries them.
package events

import "github.com/Volcyy/nerodia/reddit"

// Kind tags the variant an Event carries.
type Kind int

const (
	// KindStreamStatusChanged reports an online/offline transition of Stream.
	KindStreamStatusChanged Kind = iota + 1
	// KindInboundMessage carries one unread inbox Message.
	KindInboundMessage
	// KindShutdown stops the consumer. It carries no data.
	KindShutdown
)

func (k Kind) String() string {
	switch k {
	case KindStreamStatusChanged:
		return "stream_status_changed"
	case KindInboundMessage:
		return "inbound_message"
	case KindShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is a tagged value; only the field matching Kind is set.
// Events are passed by value and never modified after construction.
type Event struct {
	Kind    Kind
	Stream  string
	Message reddit.Message
}

// StreamStatusChanged returns the event for a transition of stream.
func StreamStatusChanged(stream string) Event {
	return Event{Kind: KindStreamStatusChanged, Stream: stream}
}

// InboundMessage returns the event for an unread message.
func InboundMessage(msg reddit.Message) Event {
	return Event{Kind: KindInboundMessage, Message: msg}
}

// Shutdown returns the sentinel event.
func Shutdown() Event {
	return Event{Kind: KindShutdown}
}
