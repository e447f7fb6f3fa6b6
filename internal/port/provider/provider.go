// Package provider defines the port for streaming chat completion
// backends.
package provider

import (
	"context"
	"encoding/json"

	"github.com/sur-labs/reflex/internal/domain/chat"
)

// ChunkType discriminates the variants of a stream chunk.
type ChunkType string

const (
	// ChunkText carries a fragment of assistant text.
	ChunkText ChunkType = "text"
	// ChunkUsage is the terminal chunk of a successful stream; it carries
	// the token usage and the finish reason.
	ChunkUsage ChunkType = "usage"
	// ChunkError is the terminal chunk of a failed stream.
	ChunkError ChunkType = "error"
)

// Chunk is one element of a completion stream. Exactly one terminal chunk
// (usage or error) is delivered per stream, always last.
type Chunk struct {
	Type         ChunkType
	Content      string     // text chunks
	Usage        chat.Usage // usage chunks
	FinishReason string     // usage chunks
	Err          string     // error chunks
}

// ToolSpec describes one tool exposed to the model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  json.RawMessage // JSON schema of the arguments
}

// Request is a completion request built from a conversation's history.
type Request struct {
	Messages     []chat.Message
	SystemPrompt string
	Model        string
	Tools        []ToolSpec
}

// Provider is the port interface for streaming completion backends.
type Provider interface {
	// StreamCompletion opens a completion stream. The returned channel is
	// closed after the terminal chunk. Implementations must stop producing
	// when ctx is cancelled.
	StreamCompletion(ctx context.Context, req Request) (<-chan Chunk, error)
}
