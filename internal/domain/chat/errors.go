package chat

import "fmt"

// ConversationError is a business-rule violation on a conversation
// (archived, completed, ended, limit reached, invalid status transition).
// Callers can recover by choosing a different action, typically starting
// a new conversation.
type ConversationError struct {
	ConversationID string
	Reason         string
}

func (e *ConversationError) Error() string {
	return fmt.Sprintf("conversation %s: %s", e.ConversationID, e.Reason)
}

func conversationErr(id, format string, args ...any) *ConversationError {
	return &ConversationError{ConversationID: id, Reason: fmt.Sprintf(format, args...)}
}

// InvalidMessageError is a message-ordering violation. It identifies both
// offending roles and signals an integration defect upstream rather than a
// user-recoverable condition.
type InvalidMessageError struct {
	Role      Role
	Preceding Role
}

func (e *InvalidMessageError) Error() string {
	if e.Preceding == "" {
		return fmt.Sprintf("invalid message sequence: %s cannot start a conversation", e.Role)
	}
	return fmt.Sprintf("invalid message sequence: %s cannot follow %s", e.Role, e.Preceding)
}

// StateError reports an operation attempted in a state that does not
// permit it, e.g. completing a streaming response twice.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: not allowed in state %q", e.Op, e.State)
}
