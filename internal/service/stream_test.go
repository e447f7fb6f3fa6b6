package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sur-labs/reflex/internal/adapter/memory"
	"github.com/sur-labs/reflex/internal/config"
	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/port/provider"
	"github.com/sur-labs/reflex/internal/port/stream"
)

// fakeProvider replays a fixed chunk sequence.
type fakeProvider struct {
	chunks  []provider.Chunk
	openErr error
	request provider.Request
	calls   int
}

func (p *fakeProvider) StreamCompletion(_ context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	p.calls++
	p.request = req
	if p.openErr != nil {
		return nil, p.openErr
	}
	ch := make(chan provider.Chunk, len(p.chunks))
	for _, c := range p.chunks {
		ch <- c
	}
	close(ch)
	return ch, nil
}

// recordingSink captures everything written to it.
type recordingSink struct {
	events []stream.Event
	closed int
}

func (s *recordingSink) Write(ev stream.Event) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed++
	return nil
}

func (s *recordingSink) textEvents() []string {
	var out []string
	for _, ev := range s.events {
		if ev.Type == stream.EventText {
			out = append(out, ev.Text)
		}
	}
	return out
}

func (s *recordingSink) lastEvent() stream.Event {
	if len(s.events) == 0 {
		return stream.Event{}
	}
	return s.events[len(s.events)-1]
}

func testChatConfig() config.Chat {
	return config.Chat{
		Model:        "test-model",
		DefaultMode:  "reflexive",
		TurnLimit:    13,
		ClosingStyle: config.ClosingGenerated,
	}
}

func seedConversation(t *testing.T, repo *memory.Store, mode chat.Mode, limit, userMessages int) *chat.Conversation {
	t.Helper()
	conv := chat.New("", mode, limit)
	for i := 0; i < userMessages; i++ {
		if i > 0 {
			if err := conv.AddMessage(chat.NewMessage(chat.RoleAssistant, "and why is that?")); err != nil {
				t.Fatal(err)
			}
		}
		if err := conv.AddMessage(chat.NewMessage(chat.RoleUser, "tell me what to do")); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.Save(context.Background(), conv); err != nil {
		t.Fatal(err)
	}
	return conv
}

func TestStreamTurn_HappyPath(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	usage := chat.Usage{PromptTokens: 30, CompletionTokens: 12, TotalTokens: 42}
	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "What makes you "},
		{Type: provider.ChunkText, Content: "think you need telling?"},
		{Type: provider.ChunkUsage, Usage: usage, FinishReason: "stop"},
	}}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	if err := svc.StreamTurn(context.Background(), conv.ID(), sink); err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}

	if got := sink.textEvents(); len(got) != 2 || got[0] != "What makes you " {
		t.Errorf("text events = %q", got)
	}
	last := sink.lastEvent()
	if last.Type != stream.EventFinish {
		t.Fatalf("last event = %s, want finish", last.Type)
	}
	if last.Finish.FinishReason != "stop" || last.Finish.Usage != usage || last.Finish.IsReflexiveEnd {
		t.Errorf("finish payload = %+v", last.Finish)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}

	if !strings.Contains(prov.request.SystemPrompt, "reflexive conversational assistant") {
		t.Error("reflexive turn did not use the Socratic system prompt")
	}
	if prov.request.Model != "test-model" {
		t.Errorf("request model = %q", prov.request.Model)
	}
	if prov.request.Tools != nil {
		t.Error("reflexive turns must not expose tools")
	}

	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if saved.AssistantMessageCount() != 1 {
		t.Fatalf("saved assistant messages = %d, want 1", saved.AssistantMessageCount())
	}
	if got := saved.LastAssistantMessage().Content(); got != "What makes you think you need telling?" {
		t.Errorf("saved reply = %q", got)
	}
}

func TestStreamTurn_ProviderError(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "partial "},
		{Type: provider.ChunkError, Err: "rate limited"},
	}}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	err := svc.StreamTurn(context.Background(), conv.ID(), sink)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("StreamTurn err = %v", err)
	}

	last := sink.lastEvent()
	if last.Type != stream.EventError || !strings.Contains(last.Error, "rate limited") {
		t.Errorf("last event = %+v, want error event", last)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}

	// The failed turn must not be committed.
	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if saved.AssistantMessageCount() != 0 {
		t.Error("failed turn was persisted")
	}
}

func TestStreamTurn_OpenFailure(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	prov := &fakeProvider{openErr: errors.New("connection refused")}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	if err := svc.StreamTurn(context.Background(), conv.ID(), sink); err == nil {
		t.Fatal("expected error when the stream cannot open")
	}
	if sink.lastEvent().Type != stream.EventError {
		t.Error("open failure should produce an error event")
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestStreamTurn_GeneratedClosing(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 2, 2)
	if !conv.ShouldClose() {
		t.Fatal("fixture should be at the closing turn")
	}

	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "Your answer was never here."},
		{Type: provider.ChunkUsage, Usage: chat.Usage{TotalTokens: 9}, FinishReason: "stop"},
	}}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	if err := svc.StreamTurn(context.Background(), conv.ID(), sink); err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}

	if !strings.Contains(prov.request.SystemPrompt, "CLOSING MESSAGE") {
		t.Error("closing turn did not use the closing prompt")
	}

	last := sink.lastEvent()
	if last.Type != stream.EventFinish || !last.Finish.IsReflexiveEnd {
		t.Fatalf("finish event = %+v, want reflexive end", last)
	}
	if last.Finish.FinishReason != "reflexive_end" {
		t.Errorf("finish reason = %q", last.Finish.FinishReason)
	}

	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !saved.HasEnded() {
		t.Error("conversation did not end after the closing turn")
	}
}

func TestStreamTurn_CannedClosing(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 1, 1)

	// The provider must never be called on a canned closing.
	prov := &fakeProvider{openErr: errors.New("should not be called")}
	sink := &recordingSink{}

	cfg := testChatConfig()
	cfg.ClosingStyle = config.ClosingCanned
	prompts := NewPromptService()

	svc := NewStreamService(prov, repo, prompts, cfg, nil, nil, nil)
	if err := svc.StreamTurn(context.Background(), conv.ID(), sink); err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	if prov.calls != 0 {
		t.Errorf("provider called %d times, want 0", prov.calls)
	}

	texts := sink.textEvents()
	if len(texts) != 1 {
		t.Fatalf("text events = %d, want 1", len(texts))
	}
	if texts[0] != prompts.ClosingMessageFor(conv.ID()) {
		t.Error("canned closing did not use the deterministic message")
	}

	last := sink.lastEvent()
	if last.Type != stream.EventFinish || !last.Finish.IsReflexiveEnd {
		t.Fatalf("finish event = %+v", last)
	}
	if last.Finish.Usage != (chat.Usage{}) {
		t.Errorf("canned closing reported usage %+v, want zero", last.Finish.Usage)
	}

	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !saved.HasEnded() || saved.AssistantMessageCount() != 1 {
		t.Errorf("saved state = ended %v, assistant %d", saved.HasEnded(), saved.AssistantMessageCount())
	}
}

func TestStreamTurn_EndedConversation(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 1, 1)
	if err := conv.AddMessage(chat.NewMessage(chat.RoleAssistant, "goodbye")); err != nil {
		t.Fatal(err)
	}
	if err := conv.End(); err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	prov := &fakeProvider{}
	sink := &recordingSink{}
	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)

	err := svc.StreamTurn(context.Background(), conv.ID(), sink)
	var convErr *chat.ConversationError
	if !errors.As(err, &convErr) {
		t.Fatalf("got %v, want ConversationError", err)
	}
	if !strings.Contains(convErr.Reason, "start a new conversation") {
		t.Errorf("reason = %q", convErr.Reason)
	}
	if prov.calls != 0 {
		t.Error("provider called for an ended conversation")
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestStreamTurn_StandardModeIgnoresBudget(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeStandard, 2, 5)

	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "sure"},
		{Type: provider.ChunkUsage, FinishReason: "stop"},
	}}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	if err := svc.StreamTurn(context.Background(), conv.ID(), sink); err != nil {
		t.Fatalf("StreamTurn: %v", err)
	}
	if prov.request.SystemPrompt != "" {
		t.Error("standard turns must not carry the reflexive prompt")
	}
	if sink.lastEvent().Finish.IsReflexiveEnd {
		t.Error("standard turn flagged as reflexive end")
	}
}

// failingSink accepts a fixed number of writes, then errors.
type failingSink struct {
	recordingSink
	writes int
	limit  int
}

func (s *failingSink) Write(ev stream.Event) error {
	s.writes++
	if s.writes > s.limit {
		return errors.New("client gone")
	}
	return s.recordingSink.Write(ev)
}

func TestStreamTurn_TruncatedStream(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	// The channel closes after a text chunk with no usage or error chunk.
	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "partial "},
	}}
	sink := &recordingSink{}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	err := svc.StreamTurn(context.Background(), conv.ID(), sink)
	if err == nil || !strings.Contains(err.Error(), "terminal chunk") {
		t.Fatalf("StreamTurn err = %v, want terminal chunk error", err)
	}

	last := sink.lastEvent()
	if last.Type != stream.EventError {
		t.Errorf("last event = %+v, want error event", last)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}

	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if saved.AssistantMessageCount() != 0 {
		t.Error("truncated turn was persisted")
	}
}

func TestStreamTurn_Cancelled(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "partial "},
	}}
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	err := svc.StreamTurn(ctx, conv.ID(), sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("StreamTurn err = %v, want context.Canceled", err)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}
}

func TestStreamTurn_SinkWriteFailure(t *testing.T) {
	repo := memory.NewStore()
	conv := seedConversation(t, repo, chat.ModeReflexive, 13, 1)

	prov := &fakeProvider{chunks: []provider.Chunk{
		{Type: provider.ChunkText, Content: "What makes you "},
		{Type: provider.ChunkText, Content: "think you need telling?"},
		{Type: provider.ChunkUsage, FinishReason: "stop"},
	}}
	sink := &failingSink{limit: 1}

	svc := NewStreamService(prov, repo, NewPromptService(), testChatConfig(), nil, nil, nil)
	err := svc.StreamTurn(context.Background(), conv.ID(), sink)
	if err == nil || !strings.Contains(err.Error(), "client gone") {
		t.Fatalf("StreamTurn err = %v, want sink write error", err)
	}

	if got := sink.textEvents(); len(got) != 1 {
		t.Errorf("text events delivered = %q, want exactly the first chunk", got)
	}
	if sink.closed != 1 {
		t.Errorf("sink closed %d times, want 1", sink.closed)
	}

	saved, err := repo.FindByID(context.Background(), conv.ID())
	if err != nil {
		t.Fatal(err)
	}
	if saved.AssistantMessageCount() != 0 {
		t.Error("aborted turn was persisted")
	}
}
