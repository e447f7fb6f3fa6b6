package chat

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusActive             Status = "active"
	StatusWaitingForResponse Status = "waiting_for_response"
	StatusCompleted          Status = "completed"
	StatusArchived           Status = "archived"
)

// Mode selects the conversation behavior. Standard conversations run
// indefinitely; reflexive conversations only ask questions and terminate
// after a fixed number of user turns.
type Mode string

const (
	ModeStandard  Mode = "standard"
	ModeReflexive Mode = "reflexive"
)

// DefaultTurnLimit is the reflexive-mode user-message budget.
const DefaultTurnLimit = 13

// maxMessages is a hard safety cap on conversation length, not a business
// rule. A reflexive turn limit above the cap can never be reached; End
// still requires the limit.
const maxMessages = 1000

const titleMaxLen = 50

// Conversation is the aggregate root owning an ordered, append-only
// message sequence and the lifecycle state around it. All mutations go
// through invariant-checked methods; construct via New or Restore.
type Conversation struct {
	id        string
	messages  []Message
	status    Status
	mode      Mode
	turnLimit int
	hasEnded  bool
	title     string
	metadata  map[string]any
	createdAt time.Time
	updatedAt time.Time
}

// New creates a fresh conversation. An empty id is replaced with a random
// UUID; a turnLimit <= 0 falls back to DefaultTurnLimit.
func New(id string, mode Mode, turnLimit int) *Conversation {
	if id == "" {
		id = uuid.NewString()
	}
	if mode == "" {
		mode = ModeReflexive
	}
	if turnLimit <= 0 {
		turnLimit = DefaultTurnLimit
	}
	now := time.Now().UTC()
	return &Conversation{
		id:        id,
		status:    StatusActive,
		mode:      mode,
		turnLimit: turnLimit,
		metadata:  make(map[string]any),
		createdAt: now,
		updatedAt: now,
	}
}

// Restore rehydrates a conversation from its persisted snapshot. The
// persisted status, hasEnded flag and message ordering are trusted as-is;
// historical ordering is not re-validated.
func Restore(snap Snapshot) (*Conversation, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("restore conversation %s: created_at: %w", snap.ID, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, snap.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("restore conversation %s: updated_at: %w", snap.ID, err)
	}

	c := New(snap.ID, snap.Mode, snap.TurnLimit)
	c.status = snap.Status
	c.hasEnded = snap.HasEnded
	c.title = snap.Title
	c.createdAt = createdAt
	c.updatedAt = updatedAt
	for k, v := range snap.Metadata {
		c.metadata[k] = v
	}
	c.messages = make([]Message, 0, len(snap.Messages))
	for _, ms := range snap.Messages {
		c.messages = append(c.messages, RestoreMessage(ms))
	}
	return c, nil
}

// AddMessage appends msg after checking every invariant: the hard cap, the
// conversation lifecycle (archived/completed/ended reject all messages),
// the role adjacency rules, and pending tool invocations. On success the
// status is recomputed from the new last role and the title is derived
// from the first user message when unset.
func (c *Conversation) AddMessage(msg Message) error {
	if err := c.validateCanAdd(msg); err != nil {
		return err
	}

	deriveTitle := c.title == "" && msg.role == RoleUser && c.UserMessageCount() == 0

	c.messages = append(c.messages, msg)
	c.updatedAt = time.Now().UTC()

	switch msg.role {
	case RoleUser:
		c.status = StatusWaitingForResponse
	case RoleAssistant:
		c.status = StatusActive
	}

	if deriveTitle {
		c.title = deriveTitleFrom(msg.content)
	}
	return nil
}

func (c *Conversation) validateCanAdd(msg Message) error {
	if len(c.messages) >= maxMessages {
		return conversationErr(c.id, "reached maximum message limit of %d", maxMessages)
	}
	if c.mode == ModeReflexive && c.hasEnded {
		return conversationErr(c.id, "cannot add messages to ended reflexive conversation")
	}
	if c.status == StatusArchived {
		return conversationErr(c.id, "cannot add messages to archived conversation")
	}
	if c.status == StatusCompleted {
		return conversationErr(c.id, "cannot add messages to completed conversation")
	}

	if last := c.LastMessage(); last == nil {
		if !msg.validFirst() {
			return &InvalidMessageError{Role: msg.role}
		}
	} else if !msg.ValidAfter(*last) {
		return &InvalidMessageError{Role: msg.role, Preceding: last.role}
	}

	// Tool exchanges must resolve before the conversation moves on.
	if c.HasPendingToolInvocations() && msg.role != RoleTool && msg.role != RoleAssistant {
		return conversationErr(c.id, "cannot add %s message while tool invocations are pending", msg.role)
	}
	return nil
}

func deriveTitleFrom(content string) string {
	firstLine := content
	if i := strings.IndexByte(content, '\n'); i >= 0 {
		firstLine = content[:i]
	}
	runes := []rune(firstLine)
	if len(runes) > titleMaxLen {
		return string(runes[:titleMaxLen]) + "..."
	}
	return firstLine
}

// HasPendingToolInvocations reports whether the most recent assistant
// message issued tool calls that do not all have a matching tool-role
// result appended after it.
func (c *Conversation) HasPendingToolInvocations() bool {
	idx := c.lastAssistantIndex()
	if idx < 0 {
		return false
	}
	last := c.messages[idx]
	if !last.HasToolInvocations() {
		return false
	}

	wanted := make(map[string]bool, len(last.invocations))
	for _, inv := range last.invocations {
		wanted[inv.CallID] = true
	}
	resolved := 0
	for _, m := range c.messages[idx+1:] {
		if m.role == RoleTool && wanted[m.ToolCallID()] {
			resolved++
		}
	}
	return resolved < len(wanted)
}

// MarkCompleted transitions the conversation to completed. Archived
// conversations cannot be completed.
func (c *Conversation) MarkCompleted() error {
	if c.status == StatusArchived {
		return conversationErr(c.id, "cannot complete an archived conversation")
	}
	c.status = StatusCompleted
	c.updatedAt = time.Now().UTC()
	return nil
}

// Archive moves the conversation to the archived state.
func (c *Conversation) Archive() error {
	if c.status == StatusArchived {
		return conversationErr(c.id, "conversation is already archived")
	}
	c.status = StatusArchived
	c.updatedAt = time.Now().UTC()
	return nil
}

// Reactivate returns an archived conversation to active. Only archived
// conversations can be reactivated.
func (c *Conversation) Reactivate() error {
	if c.status != StatusArchived {
		return conversationErr(c.id, "can only reactivate archived conversations")
	}
	c.status = StatusActive
	c.updatedAt = time.Now().UTC()
	return nil
}

// End terminates a reflexive conversation. It requires the turn limit to
// have been reached and is irreversible: hasEnded never clears and every
// later AddMessage fails.
func (c *Conversation) End() error {
	if c.mode != ModeReflexive {
		return conversationErr(c.id, "can only end reflexive conversations")
	}
	if !c.HasReachedLimit() {
		return conversationErr(c.id, "cannot end conversation before reaching limit of %d user messages", c.turnLimit)
	}
	c.hasEnded = true
	c.status = StatusCompleted
	c.updatedAt = time.Now().UTC()
	return nil
}

// SetTitle overrides the (possibly auto-derived) title.
func (c *Conversation) SetTitle(title string) error {
	if title == "" {
		return conversationErr(c.id, "title must be a non-empty string")
	}
	c.title = title
	c.updatedAt = time.Now().UTC()
	return nil
}

// AddMetadata stores an arbitrary bookkeeping value on the conversation.
func (c *Conversation) AddMetadata(key string, value any) {
	c.metadata[key] = value
	c.updatedAt = time.Now().UTC()
}

// Metadata returns the metadata value stored under key.
func (c *Conversation) Metadata(key string) (any, bool) {
	v, ok := c.metadata[key]
	return v, ok
}

// ShouldClose reports whether this is exactly the closing turn: reflexive
// mode, the user-message count equals the turn limit, and the conversation
// has not already ended. Equality (not >=) makes it fire on one turn only.
func (c *Conversation) ShouldClose() bool {
	if c.mode != ModeReflexive {
		return false
	}
	return c.UserMessageCount() == c.turnLimit && !c.hasEnded
}

// HasReachedLimit reports whether the user-message count is at or over the
// reflexive turn limit. Always false in standard mode.
func (c *Conversation) HasReachedLimit() bool {
	if c.mode != ModeReflexive {
		return false
	}
	return c.UserMessageCount() >= c.turnLimit
}

// CanContinue reports whether another turn is allowed. Standard
// conversations always continue; reflexive ones stop once ended or at the
// limit.
func (c *Conversation) CanContinue() bool {
	if c.mode != ModeReflexive {
		return true
	}
	return !c.hasEnded && !c.HasReachedLimit()
}

// Queries.

func (c *Conversation) ID() string      { return c.id }
func (c *Conversation) Status() Status  { return c.status }
func (c *Conversation) Mode() Mode      { return c.mode }
func (c *Conversation) TurnLimit() int  { return c.turnLimit }
func (c *Conversation) HasEnded() bool  { return c.hasEnded }
func (c *Conversation) Title() string   { return c.title }
func (c *Conversation) IsReflexive() bool { return c.mode == ModeReflexive }

func (c *Conversation) CreatedAt() time.Time { return c.createdAt }
func (c *Conversation) UpdatedAt() time.Time { return c.updatedAt }

// Messages returns a copy of the ordered message sequence.
func (c *Conversation) Messages() []Message {
	return append([]Message(nil), c.messages...)
}

// MessageCount returns the total number of messages.
func (c *Conversation) MessageCount() int { return len(c.messages) }

// UserMessageCount returns how many user messages have been appended. The
// reflexive turn budget is driven by this count, not the total.
func (c *Conversation) UserMessageCount() int { return c.countByRole(RoleUser) }

// AssistantMessageCount returns how many assistant messages have been appended.
func (c *Conversation) AssistantMessageCount() int { return c.countByRole(RoleAssistant) }

func (c *Conversation) countByRole(role Role) int {
	n := 0
	for _, m := range c.messages {
		if m.role == role {
			n++
		}
	}
	return n
}

// LastMessage returns the most recent message, or nil when empty.
func (c *Conversation) LastMessage() *Message {
	if len(c.messages) == 0 {
		return nil
	}
	m := c.messages[len(c.messages)-1]
	return &m
}

// LastUserMessage returns the most recent user message, or nil.
func (c *Conversation) LastUserMessage() *Message { return c.lastByRole(RoleUser) }

// LastAssistantMessage returns the most recent assistant message, or nil.
func (c *Conversation) LastAssistantMessage() *Message { return c.lastByRole(RoleAssistant) }

func (c *Conversation) lastByRole(role Role) *Message {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].role == role {
			m := c.messages[i]
			return &m
		}
	}
	return nil
}

func (c *Conversation) lastAssistantIndex() int {
	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].role == RoleAssistant {
			return i
		}
	}
	return -1
}

// Snapshot is the lossless serialized form of a Conversation. Timestamps
// are ISO-8601 text; Restore(Snapshot) reproduces an observably identical
// conversation.
type Snapshot struct {
	ID               string            `json:"id"`
	Messages         []MessageSnapshot `json:"messages"`
	Status           Status            `json:"status"`
	Title            string            `json:"title,omitempty"`
	MessageCount     int               `json:"message_count"`
	UserMessageCount int               `json:"user_message_count"`
	Mode             Mode              `json:"mode"`
	TurnLimit        int               `json:"turn_limit"`
	HasEnded         bool              `json:"has_ended"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        string            `json:"created_at"`
	UpdatedAt        string            `json:"updated_at"`
}

// Snapshot returns the serialized form of the conversation.
func (c *Conversation) Snapshot() Snapshot {
	msgs := make([]MessageSnapshot, 0, len(c.messages))
	for _, m := range c.messages {
		msgs = append(msgs, m.Snapshot())
	}
	var meta map[string]any
	if len(c.metadata) > 0 {
		meta = make(map[string]any, len(c.metadata))
		for k, v := range c.metadata {
			meta[k] = v
		}
	}
	return Snapshot{
		ID:               c.id,
		Messages:         msgs,
		Status:           c.status,
		Title:            c.title,
		MessageCount:     len(c.messages),
		UserMessageCount: c.UserMessageCount(),
		Mode:             c.mode,
		TurnLimit:        c.turnLimit,
		HasEnded:         c.hasEnded,
		Metadata:         meta,
		CreatedAt:        c.createdAt.Format(time.RFC3339Nano),
		UpdatedAt:        c.updatedAt.Format(time.RFC3339Nano),
	}
}
