package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventConversationCreated = "conversation.created"
	EventTurnCompleted       = "conversation.turn.completed"
	EventConversationEnded   = "conversation.ended"
)

// ConversationCreatedEvent is broadcast when a conversation is created.
type ConversationCreatedEvent struct {
	ConversationID string `json:"conversation_id"`
	Mode           string `json:"mode"`
}

// TurnCompletedEvent is broadcast after a turn's assistant reply is
// committed.
type TurnCompletedEvent struct {
	ConversationID string `json:"conversation_id"`
	FinishReason   string `json:"finish_reason"`
	TotalTokens    int    `json:"total_tokens"`
}

// ConversationEndedEvent is broadcast when a reflexive conversation
// reaches its terminal state.
type ConversationEndedEvent struct {
	ConversationID string `json:"conversation_id"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
