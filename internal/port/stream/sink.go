// Package stream defines the port for delivering turn events to a client.
package stream

import "github.com/sur-labs/reflex/internal/domain/chat"

// EventType discriminates the variants of a turn event.
type EventType string

const (
	// EventText carries a fragment of assistant text as it is generated.
	EventText EventType = "text"
	// EventFinish terminates a successful turn.
	EventFinish EventType = "finish"
	// EventError terminates a failed turn.
	EventError EventType = "error"
)

// FinishPayload closes out a successful turn.
type FinishPayload struct {
	FinishReason   string     `json:"finishReason"`
	Usage          chat.Usage `json:"usage"`
	IsContinued    bool       `json:"isContinued"`
	IsReflexiveEnd bool       `json:"isReflexiveEnd"`
}

// Event is one element of a turn's outbound stream. A turn emits zero or
// more text events followed by exactly one finish or error event.
type Event struct {
	Type   EventType
	Text   string         // text events
	Finish *FinishPayload // finish events
	Error  string         // error events
}

// TextEvent wraps a text fragment.
func TextEvent(text string) Event {
	return Event{Type: EventText, Text: text}
}

// ErrorEvent wraps a turn failure.
func ErrorEvent(err error) Event {
	return Event{Type: EventError, Error: err.Error()}
}

// Sink receives the events of one turn. Write is called from a single
// goroutine; Close is idempotent and always called once the turn is over.
type Sink interface {
	Write(Event) error
	Close() error
}
