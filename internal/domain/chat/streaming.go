package chat

import "strings"

// StreamState is the lifecycle state of one in-flight model reply.
type StreamState string

const (
	StreamPending   StreamState = "pending"
	StreamStreaming StreamState = "streaming"
	StreamCompleted StreamState = "completed"
	StreamFailed    StreamState = "failed"
)

// Usage is the token accounting reported by the provider for one reply.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// StreamingResponse tracks one in-flight model reply: accumulated text,
// token usage, and the terminal outcome. Exactly one terminal transition
// (Complete or Fail) is permitted; violating the lifecycle is a StateError,
// never silently ignored.
type StreamingResponse struct {
	state        StreamState
	text         strings.Builder
	usage        Usage
	finishReason string
	err          error
}

// NewStreamingResponse creates a response in the pending state.
func NewStreamingResponse() *StreamingResponse {
	return &StreamingResponse{state: StreamPending}
}

// Start transitions pending → streaming.
func (r *StreamingResponse) Start() error {
	if r.state != StreamPending {
		return &StateError{Op: "start streaming response", State: string(r.state)}
	}
	r.state = StreamStreaming
	return nil
}

// AddTextChunk appends an incremental text chunk. Only valid while
// streaming.
func (r *StreamingResponse) AddTextChunk(text string) error {
	if r.state != StreamStreaming {
		return &StateError{Op: "add text chunk", State: string(r.state)}
	}
	r.text.WriteString(text)
	return nil
}

// Complete transitions streaming → completed, fixing the final usage and
// finish reason.
func (r *StreamingResponse) Complete(usage Usage, finishReason string) error {
	if r.state != StreamStreaming {
		return &StateError{Op: "complete streaming response", State: string(r.state)}
	}
	r.state = StreamCompleted
	r.usage = usage
	r.finishReason = finishReason
	return nil
}

// Fail transitions any non-terminal state to failed, recording the cause.
func (r *StreamingResponse) Fail(err error) error {
	if r.state == StreamCompleted || r.state == StreamFailed {
		return &StateError{Op: "fail streaming response", State: string(r.state)}
	}
	r.state = StreamFailed
	r.err = err
	return nil
}

// IsStreaming reports whether further chunks are expected.
func (r *StreamingResponse) IsStreaming() bool {
	return r.state == StreamPending || r.state == StreamStreaming
}

// State returns the current lifecycle state.
func (r *StreamingResponse) State() StreamState { return r.state }

// Text returns the accumulated reply text.
func (r *StreamingResponse) Text() string { return r.text.String() }

// Usage returns the final token usage. Zero until completed.
func (r *StreamingResponse) Usage() Usage { return r.usage }

// FinishReason returns the provider finish reason. Empty until completed.
func (r *StreamingResponse) FinishReason() string { return r.finishReason }

// Err returns the recorded failure cause, if any.
func (r *StreamingResponse) Err() error { return r.err }
