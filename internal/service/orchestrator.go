package service

import (
	"fmt"

	"github.com/sur-labs/reflex/internal/domain/chat"
)

// StreamContext is what a conversation needs to run one streaming turn: a
// fresh response tracker and the message history the provider request is
// built from.
type StreamContext struct {
	Response *chat.StreamingResponse
	Messages []chat.Message
}

// Orchestrator coordinates a conversation and one streaming turn. It is
// stateless and performs no I/O; all checks delegate to the conversation's
// own invariants.
type Orchestrator struct{}

// PrepareForStreaming validates that conv can accept a new assistant turn
// and returns a pending StreamingResponse plus the request messages.
func (Orchestrator) PrepareForStreaming(conv *chat.Conversation) (*StreamContext, error) {
	id := conv.ID()
	switch {
	case conv.Status() == chat.StatusArchived:
		return nil, &chat.ConversationError{ConversationID: id, Reason: "cannot stream into archived conversation"}
	case conv.Status() == chat.StatusCompleted:
		return nil, &chat.ConversationError{ConversationID: id, Reason: "cannot stream into completed conversation"}
	case conv.IsReflexive() && conv.HasEnded():
		return nil, &chat.ConversationError{ConversationID: id, Reason: "conversation has ended"}
	case conv.HasPendingToolInvocations():
		return nil, &chat.ConversationError{ConversationID: id, Reason: "tool invocations are pending"}
	}

	last := conv.LastMessage()
	if last == nil || (last.Role() != chat.RoleUser && last.Role() != chat.RoleTool) {
		return nil, &chat.ConversationError{ConversationID: id, Reason: "no user message awaiting a reply"}
	}

	return &StreamContext{
		Response: chat.NewStreamingResponse(),
		Messages: conv.Messages(),
	}, nil
}

// ProcessAssistantMessage commits a completed turn: the assistant message
// is appended (subject to the conversation's AddMessage invariants) and
// the final usage is recorded on the conversation for bookkeeping. The
// streaming response must be in the completed state.
func (Orchestrator) ProcessAssistantMessage(conv *chat.Conversation, msg chat.Message, resp *chat.StreamingResponse) error {
	if resp.State() != chat.StreamCompleted {
		return &chat.StateError{Op: "commit assistant message", State: string(resp.State())}
	}
	if err := conv.AddMessage(msg); err != nil {
		return fmt.Errorf("commit assistant message: %w", err)
	}
	conv.AddMetadata("last_usage", resp.Usage())
	conv.AddMetadata("last_finish_reason", resp.FinishReason())
	return nil
}
