package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/sur-labs/reflex/internal/domain"
	"github.com/sur-labs/reflex/internal/domain/chat"
)

func TestStore_SaveAndFind(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	conv := chat.New("", chat.ModeReflexive, 5)
	if err := conv.AddMessage(chat.NewMessage(chat.RoleUser, "hello")); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := s.FindByID(ctx, conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != conv.ID() || got.MessageCount() != 1 {
		t.Errorf("got %s with %d messages", got.ID(), got.MessageCount())
	}

	// The stored conversation must not alias the loaded one.
	if err := got.AddMessage(chat.NewMessage(chat.RoleAssistant, "hi")); err != nil {
		t.Fatal(err)
	}
	reloaded, err := s.FindByID(ctx, conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.MessageCount() != 1 {
		t.Error("mutation of a loaded conversation leaked into the store")
	}
}

func TestStore_NotFound(t *testing.T) {
	s := NewStore()
	if _, err := s.FindByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindByID = %v, want ErrNotFound", err)
	}
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete = %v, want ErrNotFound", err)
	}
}

func TestStore_DeleteAndCount(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	a := chat.New("", chat.ModeStandard, 0)
	b := chat.New("", chat.ModeStandard, 0)
	if err := s.Save(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, b); err != nil {
		t.Fatal(err)
	}

	if n, _ := s.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
	if err := s.Delete(ctx, a.ID()); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
