package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sur-labs/reflex/internal/adapter/memory"
	"github.com/sur-labs/reflex/internal/domain"
	"github.com/sur-labs/reflex/internal/domain/chat"
)

func newConversationService() (*ConversationService, *memory.Store) {
	repo := memory.NewStore()
	return NewConversationService(repo, testChatConfig(), nil), repo
}

func TestConversationService_Create(t *testing.T) {
	svc, repo := newConversationService()

	conv, err := svc.Create(context.Background(), CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Mode() != chat.ModeReflexive {
		t.Errorf("Mode() = %s, want configured default reflexive", conv.Mode())
	}
	if conv.TurnLimit() != 13 {
		t.Errorf("TurnLimit() = %d, want configured default 13", conv.TurnLimit())
	}

	if _, err := repo.FindByID(context.Background(), conv.ID()); err != nil {
		t.Errorf("created conversation not persisted: %v", err)
	}
}

func TestConversationService_CreateOverrides(t *testing.T) {
	svc, _ := newConversationService()

	conv, err := svc.Create(context.Background(), CreateRequest{Mode: chat.ModeStandard, TurnLimit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if conv.Mode() != chat.ModeStandard || conv.TurnLimit() != 5 {
		t.Errorf("conversation = %s/%d, want standard/5", conv.Mode(), conv.TurnLimit())
	}
}

func TestConversationService_CreateInvalidMode(t *testing.T) {
	svc, _ := newConversationService()

	_, err := svc.Create(context.Background(), CreateRequest{Mode: "hybrid"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestConversationService_SendMessage(t *testing.T) {
	svc, _ := newConversationService()
	conv, err := svc.Create(context.Background(), CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.SendMessage(context.Background(), conv.ID(), "should I move abroad?")
	if err != nil {
		t.Fatal(err)
	}
	if got.UserMessageCount() != 1 {
		t.Errorf("UserMessageCount() = %d, want 1", got.UserMessageCount())
	}
	if got.Status() != chat.StatusWaitingForResponse {
		t.Errorf("Status() = %s, want waiting_for_response", got.Status())
	}
	if got.Title() != "should I move abroad?" {
		t.Errorf("Title() = %q", got.Title())
	}

	if _, err := svc.SendMessage(context.Background(), conv.ID(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty content: got %v, want ErrValidation", err)
	}
}

func TestConversationService_SendMessageAfterEnd(t *testing.T) {
	svc, repo := newConversationService()

	conv := chat.New("", chat.ModeReflexive, 1)
	if err := conv.AddMessage(chat.NewMessage(chat.RoleUser, "q")); err != nil {
		t.Fatal(err)
	}
	if err := conv.AddMessage(chat.NewMessage(chat.RoleAssistant, "a")); err != nil {
		t.Fatal(err)
	}
	if err := conv.End(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	_, err := svc.SendMessage(context.Background(), conv.ID(), "one more")
	var convErr *chat.ConversationError
	if !errors.As(err, &convErr) {
		t.Fatalf("got %v, want ConversationError", err)
	}
}

func TestConversationService_Lifecycle(t *testing.T) {
	svc, _ := newConversationService()
	conv, err := svc.Create(context.Background(), CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	id := conv.ID()
	ctx := context.Background()

	if got, err := svc.Archive(ctx, id); err != nil || got.Status() != chat.StatusArchived {
		t.Fatalf("Archive = %v, %v", got, err)
	}
	if got, err := svc.Reactivate(ctx, id); err != nil || got.Status() != chat.StatusActive {
		t.Fatalf("Reactivate = %v, %v", got, err)
	}
	if got, err := svc.Rename(ctx, id, "renamed"); err != nil || got.Title() != "renamed" {
		t.Fatalf("Rename = %v, %v", got, err)
	}
	if got, err := svc.Complete(ctx, id); err != nil || got.Status() != chat.StatusCompleted {
		t.Fatalf("Complete = %v, %v", got, err)
	}

	if err := svc.Delete(ctx, id); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Get(ctx, id); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get after Delete: got %v, want ErrNotFound", err)
	}

	n, err := svc.Count(ctx)
	if err != nil || n != 0 {
		t.Errorf("Count = %d, %v", n, err)
	}
}
