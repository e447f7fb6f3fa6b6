// Package openai implements the completion provider port against any
// OpenAI-compatible chat completions API.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/sur-labs/reflex/internal/domain/chat"
	"github.com/sur-labs/reflex/internal/port/provider"
	"github.com/sur-labs/reflex/internal/resilience"
)

// Client streams chat completions from an OpenAI-compatible endpoint.
type Client struct {
	client  *goopenai.Client
	breaker *resilience.Breaker
}

// New creates a provider client. baseURL may be empty for the public
// OpenAI API.
func New(apiKey, baseURL string) *Client {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{client: goopenai.NewClientWithConfig(cfg)}
}

// SetBreaker attaches a circuit breaker to stream establishment. Chunks of
// an already-open stream are not routed through the breaker.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// StreamCompletion opens a streaming completion and translates the wire
// deltas into provider chunks. The returned channel is closed after the
// terminal usage-or-error chunk, or when ctx is cancelled.
func (c *Client) StreamCompletion(ctx context.Context, req provider.Request) (<-chan provider.Chunk, error) {
	oreq := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: toWireMessages(req),
		Tools:    toWireTools(req.Tools),
		Stream:   true,
		StreamOptions: &goopenai.StreamOptions{
			IncludeUsage: true,
		},
	}

	var s *goopenai.ChatCompletionStream
	open := func() error {
		var err error
		s, err = c.client.CreateChatCompletionStream(ctx, oreq)
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(open)
	} else {
		err = open()
	}
	if err != nil {
		return nil, err
	}

	ch := make(chan provider.Chunk)
	go c.pump(ctx, s, ch)
	return ch, nil
}

// pump reads the wire stream and forwards translated chunks until the
// terminal chunk or ctx cancellation.
func (c *Client) pump(ctx context.Context, s *goopenai.ChatCompletionStream, ch chan<- provider.Chunk) {
	defer close(ch)
	defer func() {
		if err := s.Close(); err != nil {
			slog.Debug("completion stream close failed", "error", err)
		}
	}()

	finishReason := ""
	for {
		resp, err := s.Recv()
		if errors.Is(err, io.EOF) {
			// Stream ended without a usage frame; synthesize the
			// terminal chunk so consumers always see exactly one.
			send(ctx, ch, provider.Chunk{Type: provider.ChunkUsage, FinishReason: finishReason})
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			send(ctx, ch, provider.Chunk{Type: provider.ChunkError, Err: err.Error()})
			return
		}

		if resp.Usage != nil {
			send(ctx, ch, provider.Chunk{
				Type: provider.ChunkUsage,
				Usage: chat.Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
				FinishReason: finishReason,
			})
			return
		}

		for _, choice := range resp.Choices {
			if choice.FinishReason != "" {
				finishReason = string(choice.FinishReason)
			}
			if choice.Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, provider.Chunk{Type: provider.ChunkText, Content: choice.Delta.Content}) {
				return
			}
		}
	}
}

// send delivers a chunk unless ctx is cancelled. Reports delivery.
func send(ctx context.Context, ch chan<- provider.Chunk, chunk provider.Chunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func toWireMessages(req provider.Request) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		out = append(out, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}

	for _, m := range req.Messages {
		// A persisted leading system message is superseded by the
		// per-request prompt.
		if m.Role() == chat.RoleSystem && req.SystemPrompt != "" {
			continue
		}

		wm := goopenai.ChatCompletionMessage{
			Role:    string(m.Role()),
			Content: m.Content(),
		}
		for _, inv := range m.ToolInvocations() {
			wm.ToolCalls = append(wm.ToolCalls, goopenai.ToolCall{
				ID:   inv.CallID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      inv.Name,
					Arguments: string(inv.Arguments),
				},
			})
		}
		if m.Role() == chat.RoleTool {
			wm.ToolCallID = m.ToolCallID()
		}
		out = append(out, wm)
	}
	return out
}

func toWireTools(tools []provider.ToolSpec) []goopenai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]goopenai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}
