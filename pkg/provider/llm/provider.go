// Package llm defines the Provider interface for Large Language Model backends.
//
// Cadence uses an LLM only to reword rule-based feedback, so the contract is a
// single blocking completion call. Backends live in sub-packages (openai,
// anyllm) and a hand-written test double lives in mock.
//
// Implementations must be safe for concurrent use and must return promptly
// when the supplied context is cancelled.
package llm

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation.
type Message struct {
	// Role is one of RoleSystem, RoleUser or RoleAssistant.
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the user and drives the reply.
	Messages []Message

	// SystemPrompt is sent ahead of Messages as a system-role instruction.
	SystemPrompt string

	// Temperature controls randomness in [0, 2]. Zero uses the provider
	// default.
	Temperature float64

	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
}

// CompletionResponse is the full reply of a completion call.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities describes static limits of the configured model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input and output.
	ContextWindow int

	// MaxOutputTokens is the maximum completion length.
	MaxOutputTokens int
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns metadata about the underlying model. The result is
	// constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
