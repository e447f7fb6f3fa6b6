// Package messagequeue defines the message queue port (interface).
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the queue connection.
	Close() error
}

// Subject constants for conversation lifecycle events.
const (
	SubjectConversationCreated = "conversations.created"
	SubjectTurnCompleted       = "conversations.turn.completed"
	SubjectConversationEnded   = "conversations.ended"
)

// TurnCompletedPayload is published after a completed turn is committed.
type TurnCompletedPayload struct {
	ConversationID   string `json:"conversation_id"`
	FinishReason     string `json:"finish_reason"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	IsReflexiveEnd   bool   `json:"is_reflexive_end,omitempty"`
}

// ConversationEndedPayload is published when a reflexive conversation
// reaches its terminal state.
type ConversationEndedPayload struct {
	ConversationID string `json:"conversation_id"`
	UserMessages   int    `json:"user_messages"`
}
