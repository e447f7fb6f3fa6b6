// Package repository defines persistence ports (interfaces).
package repository

import (
	"context"

	"github.com/sur-labs/reflex/internal/domain/chat"
)

// Conversations is the port interface for conversation persistence.
type Conversations interface {
	// FindByID loads a conversation. Returns domain.ErrNotFound when no
	// conversation exists for the id.
	FindByID(ctx context.Context, id string) (*chat.Conversation, error)

	// Save upserts a conversation.
	Save(ctx context.Context, conv *chat.Conversation) error

	// Delete removes a conversation. Returns domain.ErrNotFound when no
	// conversation exists for the id.
	Delete(ctx context.Context, id string) error

	// Count reports the number of stored conversations.
	Count(ctx context.Context) (int, error)
}
