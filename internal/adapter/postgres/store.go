package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sur-labs/reflex/internal/domain"
	"github.com/sur-labs/reflex/internal/domain/chat"
)

// Store persists conversations as snapshots: scalar columns for the
// queryable fields, jsonb for messages and metadata.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	var (
		snap      chat.Snapshot
		messages  []byte
		metadata  []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, title, mode, turn_limit, has_ended,
		        message_count, user_message_count, messages, metadata,
		        created_at, updated_at
		 FROM conversations WHERE id = $1`,
		id,
	).Scan(&snap.ID, &snap.Status, &snap.Title, &snap.Mode, &snap.TurnLimit,
		&snap.HasEnded, &snap.MessageCount, &snap.UserMessageCount,
		&messages, &metadata, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("find conversation %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("find conversation %s: %w", id, err)
	}

	if err := json.Unmarshal(messages, &snap.Messages); err != nil {
		return nil, fmt.Errorf("decode messages for %s: %w", id, err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &snap.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
	}
	snap.CreatedAt = createdAt.Format(time.RFC3339Nano)
	snap.UpdatedAt = updatedAt.Format(time.RFC3339Nano)

	conv, err := chat.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("restore conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) Save(ctx context.Context, conv *chat.Conversation) error {
	snap := conv.Snapshot()

	messages, err := json.Marshal(snap.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	var metadata []byte
	if len(snap.Metadata) > 0 {
		metadata, err = json.Marshal(snap.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
	}
	createdAt, err := time.Parse(time.RFC3339Nano, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("parse created_at: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, snap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("parse updated_at: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO conversations
		   (id, status, title, mode, turn_limit, has_ended,
		    message_count, user_message_count, messages, metadata,
		    created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
		   status = EXCLUDED.status,
		   title = EXCLUDED.title,
		   has_ended = EXCLUDED.has_ended,
		   message_count = EXCLUDED.message_count,
		   user_message_count = EXCLUDED.user_message_count,
		   messages = EXCLUDED.messages,
		   metadata = EXCLUDED.metadata,
		   updated_at = EXCLUDED.updated_at`,
		snap.ID, snap.Status, snap.Title, snap.Mode, snap.TurnLimit,
		snap.HasEnded, snap.MessageCount, snap.UserMessageCount,
		messages, metadata, createdAt, updatedAt)
	if err != nil {
		return fmt.Errorf("save conversation %s: %w", snap.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete conversation %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}
