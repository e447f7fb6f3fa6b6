// Package memory provides an in-memory conversation store for tests and
// single-process deployments.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sur-labs/reflex/internal/domain"
	"github.com/sur-labs/reflex/internal/domain/chat"
)

// Store keeps conversations as marshaled snapshots so that callers never
// share aggregate state through the store.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{items: make(map[string][]byte)}
}

func (s *Store) FindByID(ctx context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	data, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("find conversation %s: %w", id, domain.ErrNotFound)
	}

	var snap chat.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	conv, err := chat.Restore(snap)
	if err != nil {
		return nil, fmt.Errorf("restore conversation %s: %w", id, err)
	}
	return conv, nil
}

func (s *Store) Save(ctx context.Context, conv *chat.Conversation) error {
	data, err := json.Marshal(conv.Snapshot())
	if err != nil {
		return fmt.Errorf("encode conversation %s: %w", conv.ID(), err)
	}

	s.mu.Lock()
	s.items[conv.ID()] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return fmt.Errorf("delete conversation %s: %w", id, domain.ErrNotFound)
	}
	delete(s.items, id)
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items), nil
}
