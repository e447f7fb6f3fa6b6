package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sur-labs/reflex/internal/adapter/ws"
	"github.com/sur-labs/reflex/internal/config"
	"github.com/sur-labs/reflex/internal/domain"
	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/port/broadcast"
	"github.com/sur-labs/reflex/internal/port/repository"
)

// CreateRequest holds the optional knobs for a new conversation. Zero
// values fall back to the configured defaults.
type CreateRequest struct {
	Mode      chat.Mode `json:"mode,omitempty"`
	TurnLimit int       `json:"turn_limit,omitempty"`
}

// ConversationService implements conversation management: creation,
// lookup, the user half of a turn, and the explicit lifecycle transitions.
type ConversationService struct {
	repo repository.Conversations
	cfg  config.Chat
	hub  broadcast.Broadcaster // optional
}

// NewConversationService creates a ConversationService. hub may be nil.
func NewConversationService(repo repository.Conversations, cfg config.Chat, hub broadcast.Broadcaster) *ConversationService {
	return &ConversationService{repo: repo, cfg: cfg, hub: hub}
}

// Create starts a new conversation and persists it.
func (s *ConversationService) Create(ctx context.Context, req CreateRequest) (*chat.Conversation, error) {
	mode := req.Mode
	if mode == "" {
		mode = chat.Mode(s.cfg.DefaultMode)
	}
	if mode != chat.ModeStandard && mode != chat.ModeReflexive {
		return nil, fmt.Errorf("%w: unknown conversation mode %q", domain.ErrValidation, req.Mode)
	}
	limit := req.TurnLimit
	if limit == 0 {
		limit = s.cfg.TurnLimit
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: turn limit must be positive, got %d", domain.ErrValidation, req.TurnLimit)
	}

	conv := chat.New("", mode, limit)
	if err := s.repo.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventConversationCreated, ws.ConversationCreatedEvent{
			ConversationID: conv.ID(),
			Mode:           string(conv.Mode()),
		})
	}

	slog.Info("conversation created", "conversation_id", conv.ID(), "mode", conv.Mode(), "turn_limit", conv.TurnLimit())
	return conv, nil
}

// Get returns a conversation by id.
func (s *ConversationService) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.repo.FindByID(ctx, id)
}

// Delete removes a conversation permanently.
func (s *ConversationService) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// Count returns the number of stored conversations.
func (s *ConversationService) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// SendMessage appends a user message to the conversation and persists it.
// The assistant half of the turn is produced separately by the
// StreamService.
func (s *ConversationService) SendMessage(ctx context.Context, id, content string) (*chat.Conversation, error) {
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", domain.ErrValidation)
	}

	conv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv.IsReflexive() && !conv.CanContinue() {
		return nil, &chat.ConversationError{
			ConversationID: id,
			Reason:         "conversation has ended, start a new conversation",
		}
	}

	if err := conv.AddMessage(chat.NewMessage(chat.RoleUser, content)); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return conv, nil
}

// Complete marks a conversation as completed.
func (s *ConversationService) Complete(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.transition(ctx, id, (*chat.Conversation).MarkCompleted)
}

// Archive moves a conversation to the archived state.
func (s *ConversationService) Archive(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.transition(ctx, id, (*chat.Conversation).Archive)
}

// Reactivate returns an archived conversation to active.
func (s *ConversationService) Reactivate(ctx context.Context, id string) (*chat.Conversation, error) {
	return s.transition(ctx, id, (*chat.Conversation).Reactivate)
}

// Rename overrides the conversation title.
func (s *ConversationService) Rename(ctx context.Context, id, title string) (*chat.Conversation, error) {
	return s.transition(ctx, id, func(c *chat.Conversation) error {
		return c.SetTitle(title)
	})
}

func (s *ConversationService) transition(ctx context.Context, id string, op func(*chat.Conversation) error) (*chat.Conversation, error) {
	conv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if err := op(conv); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	return conv, nil
}
