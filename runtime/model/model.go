// Package model defines the provider-agnostic message and streaming types
// used by the LLM Gateway and the components that sit above it (prompt
// assembler, orchestrator, condenser). Messages carry plain text content;
// the orchestration core never needs the richer multimodal part taxonomy a
// general-purpose agent framework would (images, documents, citations) since
// notebook requests and provider responses are text and JSON.
package model

import "context"

// ConversationRole identifies the speaker of a Message.
type ConversationRole string

const (
	// RoleSystem marks a system/instruction message.
	RoleSystem ConversationRole = "system"
	// RoleUser marks a user message.
	RoleUser ConversationRole = "user"
	// RoleAssistant marks a model-generated message.
	RoleAssistant ConversationRole = "assistant"
)

// Message is a single turn in a conversation passed to a provider.
type Message struct {
	Role    ConversationRole
	Content string
}

// ModelClass selects a model family when a concrete model id isn't given.
type ModelClass string

const (
	// ClassDefault selects the provider's default model.
	ClassDefault ModelClass = "default"
	// ClassHighReasoning selects a high-reasoning (typically slower, pricier) model.
	ClassHighReasoning ModelClass = "high-reasoning"
	// ClassSmall selects a small/cheap model.
	ClassSmall ModelClass = "small"
)

// Request captures the inputs to a single provider invocation.
type Request struct {
	// Model is a concrete provider model identifier. Takes precedence over Class.
	Model string
	// Class selects a model family when Model is empty.
	Class ModelClass
	// System is an optional system prompt, sent using each provider's native
	// system-message mechanism.
	System string
	// Messages is the ordered conversation history, not including System.
	Messages []Message
	// Temperature controls sampling when supported by the provider.
	Temperature float32
	// MaxTokens caps output tokens when supported by the provider.
	MaxTokens int
}

// TokenUsage reports token consumption for a single call.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Response is the result of a non-streaming Generate call.
type Response struct {
	Text  string
	Usage TokenUsage
	// StopReason is provider-specific ("stop", "length", "content_filter", ...).
	StopReason string
}

// Chunk is one increment of a streamed response. Chunks are emitted in
// source order; Done is true exactly once, on the final chunk, and carries
// no further Delta text.
type Chunk struct {
	Delta string
	Done  bool
	Usage *TokenUsage
}

// Streamer delivers a finite, non-restartable sequence of Chunks. Callers
// must drain Recv until it returns an error (io.EOF on a clean finish) and
// then call Close exactly once.
type Streamer interface {
	Recv() (Chunk, error)
	Close() error
}

// ProviderConfig carries the connection details for one configured provider
// instance. Credential may hold a single API key; key-rotation-capable
// providers (Google-style) accept a list of candidate keys instead, see the
// google package.
type ProviderConfig struct {
	Endpoint   string
	Model      string
	Credential string
}

// Client is the provider-agnostic model client every gateway provider
// adapter implements: generate, stream, close.
type Client interface {
	// Generate performs a non-streaming invocation.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// Stream performs a streaming invocation. Not all providers are required
	// to support streaming; those that don't return ErrStreamingUnsupported.
	Stream(ctx context.Context, req *Request) (Streamer, error)
	// Close releases resources held by the client (connection pools, etc).
	Close() error
}
