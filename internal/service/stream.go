package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sur-labs/reflex/internal/adapter/otel"
	"github.com/sur-labs/reflex/internal/adapter/ws"
	"github.com/sur-labs/reflex/internal/config"
	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/port/broadcast"
	"github.com/sur-labs/reflex/internal/port/messagequeue"
	"github.com/sur-labs/reflex/internal/port/provider"
	"github.com/sur-labs/reflex/internal/port/repository"
	"github.com/sur-labs/reflex/internal/port/stream"
)

// finishReasonEnd tags the finish event of the closing turn of a
// reflexive conversation.
const finishReasonEnd = "reflexive_end"

// StreamService drives one streaming chat turn end-to-end: it loads the
// conversation, selects the prompt for its mode, consumes the provider's
// chunk stream, forwards events to the sink, and commits the completed
// reply. The sink is closed exactly once on every exit path.
type StreamService struct {
	provider provider.Provider
	repo     repository.Conversations
	prompts  *PromptService
	orch     Orchestrator
	cfg      config.Chat

	queue   messagequeue.Queue    // optional, best-effort lifecycle events
	hub     broadcast.Broadcaster // optional, real-time client fan-out
	metrics *otel.Metrics         // optional
}

// NewStreamService wires a StreamService. queue, hub and metrics may be
// nil; the corresponding side channels are then skipped.
func NewStreamService(
	p provider.Provider,
	repo repository.Conversations,
	prompts *PromptService,
	cfg config.Chat,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *otel.Metrics,
) *StreamService {
	return &StreamService{
		provider: p,
		repo:     repo,
		prompts:  prompts,
		cfg:      cfg,
		queue:    queue,
		hub:      hub,
		metrics:  metrics,
	}
}

// StreamTurn runs one turn for the given conversation, forwarding events
// to sink as they arrive. On any failure the in-flight streaming response
// is marked failed, a single error event is written, the sink is closed,
// and the error is returned; the conversation is persisted only after a
// fully completed reply.
func (s *StreamService) StreamTurn(ctx context.Context, conversationID string, sink stream.Sink) (err error) {
	var resp *chat.StreamingResponse

	defer func() {
		if err != nil {
			if resp != nil && resp.IsStreaming() {
				_ = resp.Fail(err)
			}
			if werr := sink.Write(stream.ErrorEvent(err)); werr != nil {
				slog.Debug("error event not delivered", "conversation_id", conversationID, "error", werr)
			}
			s.countTurn(ctx, "failed")
		}
		if cerr := sink.Close(); cerr != nil {
			slog.Warn("sink close failed", "conversation_id", conversationID, "error", cerr)
		}
	}()

	conv, err := s.repo.FindByID(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation: %w", err)
	}

	closing := false
	if conv.IsReflexive() {
		switch {
		case conv.ShouldClose():
			closing = true
		case !conv.CanContinue():
			return &chat.ConversationError{
				ConversationID: conversationID,
				Reason:         "conversation has ended, start a new conversation",
			}
		}
	}

	if closing && s.cfg.ClosingStyle == config.ClosingCanned {
		return s.closeWithCannedMessage(ctx, conv, sink)
	}

	sctx, err := s.orch.PrepareForStreaming(conv)
	if err != nil {
		return err
	}
	resp = sctx.Response
	if err = resp.Start(); err != nil {
		return err
	}

	req := provider.Request{
		Messages: sctx.Messages,
		Model:    s.cfg.Model,
		// Reflexive conversations never expose tools to the model.
		Tools: nil,
	}
	if conv.IsReflexive() {
		if closing {
			req.SystemPrompt = s.prompts.ClosingPrompt(conversationTopic(sctx.Messages))
		} else {
			req.SystemPrompt = s.prompts.SystemPrompt()
		}
	}

	s.countTurn(ctx, "started")

	chunks, err := s.provider.StreamCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("start completion: %w", err)
	}

	for chunk := range chunks {
		switch chunk.Type {
		case provider.ChunkText:
			if chunk.Content == "" {
				continue
			}
			if err = resp.AddTextChunk(chunk.Content); err != nil {
				return err
			}
			// Pass-through, not batched: the sink sees chunks in
			// arrival order with no buffering in between.
			if err = sink.Write(stream.TextEvent(chunk.Content)); err != nil {
				return fmt.Errorf("forward text: %w", err)
			}

		case provider.ChunkUsage:
			if err = s.commitTurn(ctx, conv, resp, chunk, closing, sink); err != nil {
				return err
			}

		case provider.ChunkError:
			return errors.New(chunk.Err)
		}
	}

	// The channel closed without a terminal usage-or-error chunk, which
	// is what the provider does on cancellation. The turn did not
	// complete; the deferred failure path handles the response and sink.
	if resp.IsStreaming() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.New("provider stream ended without a terminal chunk")
	}
	return nil
}

// commitTurn finalizes the streaming response, appends the assistant
// message, marks the conversation ended on the closing turn, persists it,
// and emits the finish event.
func (s *StreamService) commitTurn(
	ctx context.Context,
	conv *chat.Conversation,
	resp *chat.StreamingResponse,
	chunk provider.Chunk,
	closing bool,
	sink stream.Sink,
) error {
	finishReason := chunk.FinishReason
	if finishReason == "" {
		finishReason = "stop"
	}
	if err := resp.Complete(chunk.Usage, finishReason); err != nil {
		return err
	}

	assistant := chat.NewMessage(chat.RoleAssistant, resp.Text())
	if err := s.orch.ProcessAssistantMessage(conv, assistant, resp); err != nil {
		return err
	}
	if closing {
		if err := conv.End(); err != nil {
			return err
		}
		finishReason = finishReasonEnd
	}

	if err := s.repo.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if err := sink.Write(stream.Event{
		Type: stream.EventFinish,
		Finish: &stream.FinishPayload{
			FinishReason:   finishReason,
			Usage:          chunk.Usage,
			IsContinued:    false,
			IsReflexiveEnd: closing,
		},
	}); err != nil {
		return fmt.Errorf("forward finish: %w", err)
	}

	s.countTurn(ctx, "completed")
	s.recordUsage(ctx, chunk.Usage)
	s.announceTurn(ctx, conv, finishReason, chunk.Usage, closing)

	slog.Info("turn completed",
		"conversation_id", conv.ID(),
		"finish_reason", finishReason,
		"total_tokens", chunk.Usage.TotalTokens,
		"ended", closing,
	)
	return nil
}

// closeWithCannedMessage ends the conversation with a deterministic canned
// closing message; no provider call is made and the turn reports zero
// usage.
func (s *StreamService) closeWithCannedMessage(ctx context.Context, conv *chat.Conversation, sink stream.Sink) error {
	content := s.prompts.ClosingMessageFor(conv.ID())

	if err := conv.AddMessage(chat.NewMessage(chat.RoleAssistant, content)); err != nil {
		return err
	}
	if err := conv.End(); err != nil {
		return err
	}

	if err := sink.Write(stream.TextEvent(content)); err != nil {
		return fmt.Errorf("forward closing text: %w", err)
	}

	if err := s.repo.Save(ctx, conv); err != nil {
		return fmt.Errorf("save conversation: %w", err)
	}

	if err := sink.Write(stream.Event{
		Type: stream.EventFinish,
		Finish: &stream.FinishPayload{
			FinishReason:   finishReasonEnd,
			IsContinued:    false,
			IsReflexiveEnd: true,
		},
	}); err != nil {
		return fmt.Errorf("forward finish: %w", err)
	}

	s.countTurn(ctx, "completed")
	s.announceTurn(ctx, conv, finishReasonEnd, chat.Usage{}, true)

	slog.Info("conversation closed with canned message", "conversation_id", conv.ID())
	return nil
}

// announceTurn publishes best-effort lifecycle events to the queue and the
// websocket hub. Failures are logged, never surfaced to the turn.
func (s *StreamService) announceTurn(ctx context.Context, conv *chat.Conversation, finishReason string, usage chat.Usage, ended bool) {
	if s.queue != nil {
		payload := messagequeue.TurnCompletedPayload{
			ConversationID:   conv.ID(),
			FinishReason:     finishReason,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			IsReflexiveEnd:   ended,
		}
		if data, err := json.Marshal(payload); err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectTurnCompleted, data); err != nil {
				slog.Warn("turn event publish failed", "conversation_id", conv.ID(), "error", err)
			}
		}
		if ended {
			endPayload := messagequeue.ConversationEndedPayload{
				ConversationID: conv.ID(),
				UserMessages:   conv.UserMessageCount(),
			}
			if data, err := json.Marshal(endPayload); err == nil {
				if err := s.queue.Publish(ctx, messagequeue.SubjectConversationEnded, data); err != nil {
					slog.Warn("end event publish failed", "conversation_id", conv.ID(), "error", err)
				}
			}
		}
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventTurnCompleted, ws.TurnCompletedEvent{
			ConversationID: conv.ID(),
			FinishReason:   finishReason,
			TotalTokens:    usage.TotalTokens,
		})
		if ended {
			s.hub.BroadcastEvent(ctx, ws.EventConversationEnded, ws.ConversationEndedEvent{
				ConversationID: conv.ID(),
			})
		}
	}
}

func (s *StreamService) countTurn(ctx context.Context, outcome string) {
	if s.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	switch outcome {
	case "started":
		s.metrics.TurnsStarted.Add(ctx, 1, attrs)
	case "completed":
		s.metrics.TurnsCompleted.Add(ctx, 1, attrs)
	case "failed":
		s.metrics.TurnsFailed.Add(ctx, 1, attrs)
	}
}

func (s *StreamService) recordUsage(ctx context.Context, usage chat.Usage) {
	if s.metrics == nil || usage.TotalTokens == 0 {
		return
	}
	s.metrics.TokensUsed.Add(ctx, int64(usage.TotalTokens))
}

// conversationTopic returns a short excerpt of the first user message,
// used to ground the generated closing message.
func conversationTopic(messages []chat.Message) string {
	for _, m := range messages {
		if m.Role() != chat.RoleUser || m.Content() == "" {
			continue
		}
		runes := []rune(m.Content())
		if len(runes) > topicMaxLen {
			return string(runes[:topicMaxLen])
		}
		return m.Content()
	}
	return ""
}
