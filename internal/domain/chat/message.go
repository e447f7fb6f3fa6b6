// Package chat defines the conversation aggregate and its supporting values:
// immutable messages, role ordering rules, and the streaming response
// lifecycle. All business invariants live here; adapters and services only
// call invariant-checked operations.
package chat

import "encoding/json"

// Role identifies the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleTool:
		return true
	}
	return false
}

// MetaToolCallID is the metadata key carrying the call id a tool-role
// message resolves.
const MetaToolCallID = "tool_call_id"

// ToolInvocation is a single tool call issued by an assistant message.
// CallID is unique within the message and links the eventual tool result.
type ToolInvocation struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Message is one immutable conversation turn. Once appended to a
// Conversation it is owned by it and never mutated; the With* helpers
// return copies.
type Message struct {
	role        Role
	content     string
	invocations []ToolInvocation
	metadata    map[string]any
}

// NewMessage builds a message with the given role and content. Tool
// invocations are optional and only meaningful on assistant messages.
func NewMessage(role Role, content string, invocations ...ToolInvocation) Message {
	m := Message{role: role, content: content}
	if len(invocations) > 0 {
		m.invocations = append([]ToolInvocation(nil), invocations...)
	}
	return m
}

// NewToolResult builds a tool-role message resolving the invocation with
// the given call id.
func NewToolResult(callID, content string) Message {
	return Message{
		role:     RoleTool,
		content:  content,
		metadata: map[string]any{MetaToolCallID: callID},
	}
}

// WithMetadata returns a copy of m with the given metadata entry set.
func (m Message) WithMetadata(key string, value any) Message {
	meta := make(map[string]any, len(m.metadata)+1)
	for k, v := range m.metadata {
		meta[k] = v
	}
	meta[key] = value
	m.metadata = meta
	return m
}

// Role returns the sender role.
func (m Message) Role() Role { return m.role }

// Content returns the message text.
func (m Message) Content() string { return m.content }

// ToolInvocations returns a copy of the tool calls carried by this message.
func (m Message) ToolInvocations() []ToolInvocation {
	if len(m.invocations) == 0 {
		return nil
	}
	return append([]ToolInvocation(nil), m.invocations...)
}

// HasToolInvocations reports whether this message carries tool calls.
func (m Message) HasToolInvocations() bool { return len(m.invocations) > 0 }

// Metadata returns the metadata value stored under key.
func (m Message) Metadata(key string) (any, bool) {
	v, ok := m.metadata[key]
	return v, ok
}

// ToolCallID returns the call id a tool-role message resolves, or "".
func (m Message) ToolCallID() string {
	id, _ := m.metadata[MetaToolCallID].(string)
	return id
}

// ValidAfter reports whether m may directly follow prev. The adjacency
// rules: user follows system or assistant; assistant follows user or tool;
// tool follows assistant or tool (the pending-invocation requirement is
// enforced by the Conversation); system never follows anything.
func (m Message) ValidAfter(prev Message) bool {
	switch m.role {
	case RoleUser:
		return prev.role == RoleSystem || prev.role == RoleAssistant
	case RoleAssistant:
		return prev.role == RoleUser || prev.role == RoleTool
	case RoleTool:
		return prev.role == RoleAssistant || prev.role == RoleTool
	case RoleSystem:
		return false
	}
	return false
}

// validFirst reports whether m may open a conversation.
func (m Message) validFirst() bool {
	return m.role == RoleUser || m.role == RoleSystem
}

// MessageSnapshot is the serialized form of a Message. It round-trips
// losslessly through RestoreMessage.
type MessageSnapshot struct {
	Role            Role             `json:"role"`
	Content         string           `json:"content"`
	ToolInvocations []ToolInvocation `json:"tool_invocations,omitempty"`
	Metadata        map[string]any   `json:"metadata,omitempty"`
}

// Snapshot returns the serialized form of m.
func (m Message) Snapshot() MessageSnapshot {
	snap := MessageSnapshot{
		Role:            m.role,
		Content:         m.content,
		ToolInvocations: m.ToolInvocations(),
	}
	if len(m.metadata) > 0 {
		snap.Metadata = make(map[string]any, len(m.metadata))
		for k, v := range m.metadata {
			snap.Metadata[k] = v
		}
	}
	return snap
}

// RestoreMessage rebuilds a Message from its serialized form.
func RestoreMessage(snap MessageSnapshot) Message {
	m := Message{role: snap.Role, content: snap.Content}
	if len(snap.ToolInvocations) > 0 {
		m.invocations = append([]ToolInvocation(nil), snap.ToolInvocations...)
	}
	if len(snap.Metadata) > 0 {
		m.metadata = make(map[string]any, len(snap.Metadata))
		for k, v := range snap.Metadata {
			m.metadata[k] = v
		}
	}
	return m
}
