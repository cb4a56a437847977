// Package llm provides the generation client used by the writing workflows
// and the provider abstraction it runs on.
package llm

import (
	"context"
	"errors"
)

// Common errors returned by LLM providers.
var (
	// ErrContextTooLong is returned when the input exceeds the model's context window.
	ErrContextTooLong = errors.New("context length exceeds model maximum")

	// ErrRateLimited is returned when the API rate limit has been exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrAPIError is returned when the API returns an unexpected error.
	ErrAPIError = errors.New("API error")

	// ErrInvalidAPIKey is returned when the API key is invalid or missing.
	ErrInvalidAPIKey = errors.New("invalid or missing API key")

	// ErrModelNotFound is returned when the requested model is not available.
	ErrModelNotFound = errors.New("model not found")

	// ErrContentFiltered is returned when the provider refused to answer.
	ErrContentFiltered = errors.New("response blocked by content filter")

	// ErrEmptyResponse is returned when the model produced no text.
	ErrEmptyResponse = errors.New("empty response")

	// ErrMalformedResponse is returned when a structured response is not
	// the JSON that was asked for.
	ErrMalformedResponse = errors.New("malformed structured response")

	// ErrVisionNotSupported is returned when images are sent to a text-only model.
	ErrVisionNotSupported = errors.New("images not supported by this provider")
)

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// FinishReason constants for response completion reasons.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)

// Provider defines the interface for LLM providers.
// Implementations should be safe for concurrent use.
type Provider interface {
	// Chat sends a request and returns the complete response.
	// Returns ErrContextTooLong if the request exceeds context limits.
	// Returns ErrRateLimited if rate limits are exceeded.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Capabilities returns the capabilities of this provider.
	Capabilities() Capabilities

	// Close releases any resources held by the provider.
	Close() error
}

// ChatRequest represents a request to the chat API.
type ChatRequest struct {
	// Messages is the conversation to send.
	Messages []ChatMessage

	// MaxTokens is the maximum number of tokens to generate.
	// If 0, the provider's default is used.
	MaxTokens int

	// Temperature controls randomness in the response (0.0-2.0).
	Temperature float64

	// Schema, when set, asks for a JSON response matching this JSON Schema.
	Schema *ResponseSchema

	// Stop sequences that will stop generation.
	Stop []string
}

// ResponseSchema names a JSON Schema for structured output.
type ResponseSchema struct {
	Name   string
	Schema Schema
}

// Image is inline image data attached to a message.
type Image struct {
	MIMEType string
	Data     []byte
}

// ChatMessage represents a single message in a conversation.
type ChatMessage struct {
	// Role indicates the message author: system, user or assistant.
	Role string

	// Content is the text content of the message.
	Content string

	// Images are sent alongside Content. Only user messages carry them.
	Images []Image
}

// ChatResponse represents the complete response from a chat request.
type ChatResponse struct {
	// Message is the assistant's response message.
	Message ChatMessage

	// Usage contains token usage statistics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string

	// Model is the actual model used (may differ from requested if aliased).
	Model string
}

// TokenUsage contains token usage statistics for a request.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Capabilities describes what a provider supports.
type Capabilities struct {
	// SupportsVision indicates if the provider accepts image inputs.
	SupportsVision bool

	// SupportsSchema indicates if the provider can constrain output to a
	// JSON Schema. Without it the schema is described in the prompt.
	SupportsSchema bool

	// MaxContextTokens is the maximum context window size.
	MaxContextTokens int

	// MaxOutputTokens is the maximum number of tokens the model can generate.
	MaxOutputTokens int

	// TokenizerType identifies the tokenizer to use for token counting.
	TokenizerType string

	// Models lists the available model names.
	Models []string
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string, images ...Image) ChatMessage {
	return ChatMessage{
		Role:    RoleUser,
		Content: content,
		Images:  images,
	}
}

// HasImages reports whether any message carries an image.
func (r ChatRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}
