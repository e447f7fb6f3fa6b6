// Package cached decorates a conversation repository with a read-through
// snapshot cache.
package cached

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/port/cache"
	"github.com/sur-labs/reflex/internal/port/repository"
)

const keyPrefix = "conversation:"

// Conversations wraps a repository with a cache. Reads are served from the
// cache when possible; writes go to the repository first and then refresh
// the cached snapshot. Cache failures degrade to repository access.
type Conversations struct {
	repo  repository.Conversations
	cache cache.Cache
	ttl   time.Duration
}

// New creates the caching decorator.
func New(repo repository.Conversations, c cache.Cache, ttl time.Duration) *Conversations {
	return &Conversations{repo: repo, cache: c, ttl: ttl}
}

func (c *Conversations) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	key := keyPrefix + id

	if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		var snap chat.Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			if conv, err := chat.Restore(snap); err == nil {
				return conv, nil
			}
		}
		// Unreadable entry, fall back to the repository.
		_ = c.cache.Delete(ctx, key)
	}

	conv, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.fill(ctx, conv)
	return conv, nil
}

func (c *Conversations) Save(ctx context.Context, conv *chat.Conversation) error {
	if err := c.repo.Save(ctx, conv); err != nil {
		return err
	}
	c.fill(ctx, conv)
	return nil
}

func (c *Conversations) Delete(ctx context.Context, id string) error {
	if err := c.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, keyPrefix+id); err != nil {
		slog.Debug("cache delete failed", "conversation_id", id, "error", err)
	}
	return nil
}

func (c *Conversations) Count(ctx context.Context) (int, error) {
	return c.repo.Count(ctx)
}

func (c *Conversations) fill(ctx context.Context, conv *chat.Conversation) {
	data, err := json.Marshal(conv.Snapshot())
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, keyPrefix+conv.ID(), data, c.ttl); err != nil {
		slog.Debug("cache fill failed", "conversation_id", conv.ID(), "error", err)
	}
}
