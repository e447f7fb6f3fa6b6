// Package http provides the REST and SSE transport for conversations.
package http

import (
	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/service"
)

// Handlers bundles the services the HTTP layer exposes.
type Handlers struct {
	conversations *service.ConversationService
	streams       *service.StreamService
	prompts       *service.PromptService
}

// NewHandlers creates the handler set.
func NewHandlers(conversations *service.ConversationService, streams *service.StreamService, prompts *service.PromptService) *Handlers {
	return &Handlers{
		conversations: conversations,
		streams:       streams,
		prompts:       prompts,
	}
}

// messageResponse is the wire shape of a single message.
type messageResponse struct {
	Role            string                `json:"role"`
	Content         string                `json:"content"`
	ToolInvocations []chat.ToolInvocation `json:"tool_invocations,omitempty"`
	Metadata        map[string]any        `json:"metadata,omitempty"`
}

// conversationResponse is the wire shape of a conversation.
type conversationResponse struct {
	ID               string            `json:"id"`
	Status           string            `json:"status"`
	Mode             string            `json:"mode"`
	Title            string            `json:"title,omitempty"`
	TurnLimit        int               `json:"turn_limit"`
	HasEnded         bool              `json:"has_ended"`
	MessageCount     int               `json:"message_count"`
	UserMessageCount int               `json:"user_message_count"`
	Messages         []messageResponse `json:"messages,omitempty"`
	ContextHint      string            `json:"context_hint,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// toResponse converts a conversation for the wire. Messages are included
// only when withMessages is set.
func (h *Handlers) toResponse(conv *chat.Conversation, withMessages bool) conversationResponse {
	snap := conv.Snapshot()
	resp := conversationResponse{
		ID:               snap.ID,
		Status:           string(snap.Status),
		Mode:             string(snap.Mode),
		Title:            snap.Title,
		TurnLimit:        snap.TurnLimit,
		HasEnded:         snap.HasEnded,
		MessageCount:     snap.MessageCount,
		UserMessageCount: snap.UserMessageCount,
		CreatedAt:        snap.CreatedAt,
		UpdatedAt:        snap.UpdatedAt,
	}
	if conv.IsReflexive() && !conv.HasEnded() {
		resp.ContextHint = h.prompts.ContextHint(conv.UserMessageCount(), conv.TurnLimit())
	}
	if withMessages {
		resp.Messages = make([]messageResponse, 0, len(snap.Messages))
		for _, m := range snap.Messages {
			resp.Messages = append(resp.Messages, messageResponse{
				Role:            string(m.Role),
				Content:         m.Content,
				ToolInvocations: m.ToolInvocations,
				Metadata:        m.Metadata,
			})
		}
	}
	return resp
}
