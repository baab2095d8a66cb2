package providers

import "context"

// Message is one turn of the conversation sent to the provider.
type Message struct {
	Role    string `json:"role"` // user, assistant or system
	Content string `json:"content"`
}

// CompletionRequest carries the prompt and generation parameters.
type CompletionRequest struct {
	Messages        []Message
	Temperature     *float64
	TopP            *float64
	MaxOutputTokens *int
}

// TokenUsage is the provider-reported token accounting for one completion.
type TokenUsage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Completion is a finished, non-streamed provider response.
type Completion struct {
	Text         string
	FinishReason string
	Usage        TokenUsage
}

// StreamChunk is one element of a streamed completion. Exactly one of Text,
// Usage or Err is meaningful per chunk; Usage arrives on the final chunks.
type StreamChunk struct {
	Text  string
	Usage *TokenUsage
	Err   error
}

// Provider is an LLM completion backend.
type Provider interface {
	Name() string

	// Complete performs a blocking completion.
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)

	// StreamComplete starts a streamed completion. The returned channel is
	// closed when the stream ends, errors out, or ctx is cancelled.
	StreamComplete(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error)
}
