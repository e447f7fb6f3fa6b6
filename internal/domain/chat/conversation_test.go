package chat

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// addTurns appends n complete user/assistant exchanges.
func addTurns(t *testing.T, c *Conversation, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := c.AddMessage(NewMessage(RoleUser, "question")); err != nil {
			t.Fatalf("add user message %d: %v", i+1, err)
		}
		if err := c.AddMessage(NewMessage(RoleAssistant, "answer")); err != nil {
			t.Fatalf("add assistant message %d: %v", i+1, err)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New("", "", 0)
	if c.ID() == "" {
		t.Error("New should assign an id")
	}
	if c.Mode() != ModeReflexive {
		t.Errorf("Mode() = %s, want reflexive", c.Mode())
	}
	if c.TurnLimit() != DefaultTurnLimit {
		t.Errorf("TurnLimit() = %d, want %d", c.TurnLimit(), DefaultTurnLimit)
	}
	if c.Status() != StatusActive {
		t.Errorf("Status() = %s, want active", c.Status())
	}
}

func TestAddMessage_Ordering(t *testing.T) {
	c := New("c1", ModeStandard, 0)

	if err := c.AddMessage(NewMessage(RoleAssistant, "hello")); err == nil {
		t.Fatal("assistant must not open a conversation")
	}

	if err := c.AddMessage(NewMessage(RoleSystem, "be terse")); err != nil {
		t.Fatalf("system opener rejected: %v", err)
	}
	if err := c.AddMessage(NewMessage(RoleUser, "hi")); err != nil {
		t.Fatalf("user after system rejected: %v", err)
	}

	err := c.AddMessage(NewMessage(RoleUser, "hi again"))
	var seqErr *InvalidMessageError
	if !errors.As(err, &seqErr) {
		t.Fatalf("user after user: got %v, want InvalidMessageError", err)
	}
	if seqErr.Role != RoleUser || seqErr.Preceding != RoleUser {
		t.Errorf("InvalidMessageError = %+v", seqErr)
	}

	if err := c.AddMessage(NewMessage(RoleAssistant, "hello")); err != nil {
		t.Fatalf("assistant after user rejected: %v", err)
	}
	if err := c.AddMessage(NewMessage(RoleSystem, "more rules")); err == nil {
		t.Fatal("system must only appear first")
	}
}

func TestAddMessage_StatusTransitions(t *testing.T) {
	c := New("c1", ModeStandard, 0)

	if err := c.AddMessage(NewMessage(RoleUser, "hi")); err != nil {
		t.Fatal(err)
	}
	if c.Status() != StatusWaitingForResponse {
		t.Errorf("after user: Status() = %s, want waiting_for_response", c.Status())
	}

	if err := c.AddMessage(NewMessage(RoleAssistant, "hello")); err != nil {
		t.Fatal(err)
	}
	if c.Status() != StatusActive {
		t.Errorf("after assistant: Status() = %s, want active", c.Status())
	}
}

func TestAddMessage_ToolFlow(t *testing.T) {
	c := New("c1", ModeStandard, 0)
	if err := c.AddMessage(NewMessage(RoleUser, "look these up")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleAssistant, "",
		ToolInvocation{CallID: "call_a", Name: "search"},
		ToolInvocation{CallID: "call_b", Name: "fetch"},
	)); err != nil {
		t.Fatal(err)
	}

	if !c.HasPendingToolInvocations() {
		t.Fatal("two unresolved invocations should be pending")
	}

	// A user message cannot interrupt a pending tool exchange.
	if err := c.AddMessage(NewMessage(RoleUser, "never mind")); err == nil {
		t.Fatal("user message accepted while tool invocations pending")
	}

	if err := c.AddMessage(NewToolResult("call_a", `{"hits":3}`)); err != nil {
		t.Fatalf("first tool result rejected: %v", err)
	}
	if !c.HasPendingToolInvocations() {
		t.Fatal("one of two invocations resolved, should still be pending")
	}

	if err := c.AddMessage(NewToolResult("call_b", `{"body":"..."}`)); err != nil {
		t.Fatalf("second tool result rejected: %v", err)
	}
	if c.HasPendingToolInvocations() {
		t.Fatal("all invocations resolved, none should be pending")
	}

	if err := c.AddMessage(NewMessage(RoleAssistant, "here is what I found")); err != nil {
		t.Fatalf("assistant after tool results rejected: %v", err)
	}
}

func TestAddMessage_TitleDerivation(t *testing.T) {
	c := New("c1", ModeStandard, 0)

	long := strings.Repeat("a", 60) + "\nsecond line"
	if err := c.AddMessage(NewMessage(RoleUser, long)); err != nil {
		t.Fatal(err)
	}
	want := strings.Repeat("a", 50) + "..."
	if c.Title() != want {
		t.Errorf("Title() = %q, want %q", c.Title(), want)
	}

	// Later user messages never overwrite the derived title.
	if err := c.AddMessage(NewMessage(RoleAssistant, "ok")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleUser, "something else")); err != nil {
		t.Fatal(err)
	}
	if c.Title() != want {
		t.Errorf("Title() changed to %q after second user message", c.Title())
	}
}

func TestAddMessage_TitleNotDerivedWhenSet(t *testing.T) {
	c := New("c1", ModeStandard, 0)
	if err := c.SetTitle("my title"); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleUser, "hello there")); err != nil {
		t.Fatal(err)
	}
	if c.Title() != "my title" {
		t.Errorf("Title() = %q, want my title", c.Title())
	}
}

func TestReflexive_TurnBudget(t *testing.T) {
	c := New("c1", ModeReflexive, 3)

	addTurns(t, c, 2)
	if c.ShouldClose() {
		t.Error("ShouldClose() = true at 2 of 3 user messages")
	}
	if !c.CanContinue() {
		t.Error("CanContinue() = false at 2 of 3 user messages")
	}

	if err := c.AddMessage(NewMessage(RoleUser, "third question")); err != nil {
		t.Fatal(err)
	}
	if !c.ShouldClose() {
		t.Error("ShouldClose() = false at exactly 3 of 3 user messages")
	}
	if !c.HasReachedLimit() {
		t.Error("HasReachedLimit() = false at the limit")
	}
	if c.CanContinue() {
		t.Error("CanContinue() = true at the limit")
	}
}

func TestEnd(t *testing.T) {
	c := New("c1", ModeReflexive, 2)

	if err := c.End(); err == nil {
		t.Fatal("End() before the limit should fail")
	}

	addTurns(t, c, 1)
	if err := c.AddMessage(NewMessage(RoleUser, "last question")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleAssistant, "closing words")); err != nil {
		t.Fatal(err)
	}

	if err := c.End(); err != nil {
		t.Fatalf("End() at the limit: %v", err)
	}
	if !c.HasEnded() {
		t.Error("HasEnded() = false after End")
	}
	if c.Status() != StatusCompleted {
		t.Errorf("Status() = %s after End, want completed", c.Status())
	}
	if c.ShouldClose() {
		t.Error("ShouldClose() = true after End")
	}

	err := c.AddMessage(NewMessage(RoleUser, "hello?"))
	var convErr *ConversationError
	if !errors.As(err, &convErr) {
		t.Fatalf("AddMessage after End: got %v, want ConversationError", err)
	}
}

func TestEnd_StandardMode(t *testing.T) {
	c := New("c1", ModeStandard, 2)
	addTurns(t, c, 5)
	if err := c.End(); err == nil {
		t.Fatal("End() on a standard conversation should fail")
	}
	if c.HasReachedLimit() {
		t.Error("standard conversations have no turn limit")
	}
}

func TestLifecycleTransitions(t *testing.T) {
	c := New("c1", ModeStandard, 0)
	addTurns(t, c, 1)

	if err := c.Archive(); err != nil {
		t.Fatal(err)
	}
	if err := c.Archive(); err == nil {
		t.Error("archiving twice should fail")
	}
	if err := c.MarkCompleted(); err == nil {
		t.Error("completing an archived conversation should fail")
	}
	if err := c.AddMessage(NewMessage(RoleUser, "hi")); err == nil {
		t.Error("archived conversations must reject messages")
	}

	if err := c.Reactivate(); err != nil {
		t.Fatal(err)
	}
	if c.Status() != StatusActive {
		t.Errorf("Status() = %s after Reactivate, want active", c.Status())
	}
	if err := c.Reactivate(); err == nil {
		t.Error("reactivating a non-archived conversation should fail")
	}

	if err := c.MarkCompleted(); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleUser, "hi")); err == nil {
		t.Error("completed conversations must reject messages")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	c := New("c1", ModeReflexive, 5)
	addTurns(t, c, 2)
	c.AddMetadata("source", "api")
	if err := c.SetTitle("renamed"); err != nil {
		t.Fatal(err)
	}

	snap := c.Snapshot()

	// Snapshots must survive JSON persistence unchanged.
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}

	restored, err := Restore(decoded)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if restored.ID() != c.ID() || restored.Mode() != c.Mode() || restored.TurnLimit() != c.TurnLimit() {
		t.Errorf("restored identity = %s/%s/%d", restored.ID(), restored.Mode(), restored.TurnLimit())
	}
	if restored.Status() != c.Status() || restored.HasEnded() != c.HasEnded() {
		t.Errorf("restored state = %s/%v", restored.Status(), restored.HasEnded())
	}
	if restored.Title() != "renamed" {
		t.Errorf("restored Title() = %q", restored.Title())
	}
	if restored.MessageCount() != c.MessageCount() || restored.UserMessageCount() != c.UserMessageCount() {
		t.Errorf("restored counts = %d/%d", restored.MessageCount(), restored.UserMessageCount())
	}
	if v, _ := restored.Metadata("source"); v != "api" {
		t.Errorf("restored metadata source = %v", v)
	}
	if !restored.CreatedAt().Equal(c.CreatedAt()) {
		t.Errorf("restored CreatedAt() = %v, want %v", restored.CreatedAt(), c.CreatedAt())
	}

	// The restored conversation enforces the same invariants.
	if err := restored.AddMessage(NewMessage(RoleUser, "next")); err != nil {
		t.Errorf("restored conversation rejected a valid message: %v", err)
	}
}

func TestSnapshot_EndedRoundTrip(t *testing.T) {
	c := New("c1", ModeReflexive, 1)
	if err := c.AddMessage(NewMessage(RoleUser, "only question")); err != nil {
		t.Fatal(err)
	}
	if err := c.AddMessage(NewMessage(RoleAssistant, "goodbye")); err != nil {
		t.Fatal(err)
	}
	if err := c.End(); err != nil {
		t.Fatal(err)
	}

	restored, err := Restore(c.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if !restored.HasEnded() {
		t.Fatal("restored conversation lost the ended flag")
	}
	if err := restored.AddMessage(NewMessage(RoleUser, "hello?")); err == nil {
		t.Error("restored ended conversation accepted a message")
	}
}

func TestMessages_ReturnsCopy(t *testing.T) {
	c := New("c1", ModeStandard, 0)
	addTurns(t, c, 1)

	msgs := c.Messages()
	msgs[0] = NewMessage(RoleSystem, "tampered")

	if c.Messages()[0].Role() != RoleUser {
		t.Error("Messages() must return a copy")
	}
}
