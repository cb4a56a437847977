// Package adapters provides LLM provider implementations.
package adapters

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/azyu/novelcraft/internal/llm"
)

// modelCapabilities maps model names to their capabilities.
var modelCapabilities = map[string]llm.Capabilities{
	"gpt-4o": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4o-mini": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
		TokenizerType:    "o200k_base",
	},
	"gpt-4.1": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1047576,
		MaxOutputTokens:  32768,
		TokenizerType:    "o200k_base",
	},
	"gpt-4.1-mini": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1047576,
		MaxOutputTokens:  32768,
		TokenizerType:    "o200k_base",
	},
	"gpt-4-turbo": {
		SupportsVision:   true,
		SupportsSchema:   false,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
		TokenizerType:    "cl100k_base",
	},
	"gpt-3.5-turbo": {
		SupportsVision:   false,
		SupportsSchema:   false,
		MaxContextTokens: 16385,
		MaxOutputTokens:  4096,
		TokenizerType:    "cl100k_base",
	},
	"o3-mini": {
		SupportsVision:   false,
		SupportsSchema:   true,
		MaxContextTokens: 200000,
		MaxOutputTokens:  100000,
		TokenizerType:    "o200k_base",
	},
}

// DefaultRetryDelay is the delay before the first retry; later retries wait
// proportionally longer.
const DefaultRetryDelay = time.Second

// defaultCapabilities is used for unknown models.
var defaultCapabilities = llm.Capabilities{
	MaxContextTokens: 128000,
	MaxOutputTokens:  4096,
	TokenizerType:    "cl100k_base",
}

// OpenAIAdapter implements the Provider interface for OpenAI API.
type OpenAIAdapter struct {
	client *openai.Client
	model  string
	config OpenAIConfig
}

// OpenAIConfig holds configuration for the OpenAI adapter.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string

	// Model is the model to use for completions.
	Model string

	// BaseURL overrides the default API URL (for Azure or compatible APIs).
	BaseURL string

	// Organization is the optional OpenAI organization ID.
	Organization string

	// MaxRetries is the number of retries for rate-limited or failed requests.
	MaxRetries int

	// RetryDelay is the initial delay between retries.
	RetryDelay time.Duration
}

// OpenAIOption configures an OpenAIAdapter.
type OpenAIOption func(*OpenAIConfig)

// WithOpenAIBaseURL sets a custom base URL.
func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.BaseURL = baseURL
	}
}

// WithOpenAIOrganization sets the organization ID.
func WithOpenAIOrganization(org string) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.Organization = org
	}
}

// WithOpenAIRetry sets retry configuration.
func WithOpenAIRetry(maxRetries int, retryDelay time.Duration) OpenAIOption {
	return func(c *OpenAIConfig) {
		c.MaxRetries = maxRetries
		c.RetryDelay = retryDelay
	}
}

// NewOpenAIAdapter creates a new OpenAI adapter.
func NewOpenAIAdapter(apiKey, model string, opts ...OpenAIOption) (*OpenAIAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", llm.ErrInvalidAPIKey)
	}
	if model == "" {
		model = "gpt-4o"
	}

	config := OpenAIConfig{
		APIKey:     apiKey,
		Model:      model,
		MaxRetries: 3,
		RetryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(&config)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Organization != "" {
		clientConfig.OrgID = config.Organization
	}

	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
		config: config,
	}, nil
}

// Chat sends a chat completion request and returns the complete response.
func (a *OpenAIAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	openAIReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			}
		}

		resp, err := a.client.CreateChatCompletion(ctx, openAIReq)
		if err != nil {
			lastErr = a.handleError(err)
			if !isRetryable(lastErr) {
				return nil, lastErr
			}
			continue
		}

		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("%w: no choices in response", llm.ErrAPIError)
		}
		return a.buildResponse(resp), nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Capabilities returns the provider's capabilities.
func (a *OpenAIAdapter) Capabilities() llm.Capabilities {
	caps, ok := modelCapabilities[a.model]
	if !ok {
		caps = defaultCapabilities
	}
	caps.Models = availableOpenAIModels()
	return caps
}

// Close releases resources held by the adapter.
func (a *OpenAIAdapter) Close() error {
	return nil
}

// Model returns the current model name.
func (a *OpenAIAdapter) Model() string {
	return a.model
}

// buildRequest converts our ChatRequest to the OpenAI format.
func (a *OpenAIAdapter) buildRequest(req llm.ChatRequest) (openai.ChatCompletionRequest, error) {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = convertMessage(msg)
	}

	openAIReq := openai.ChatCompletionRequest{
		Model:    a.model,
		Messages: messages,
		Stop:     req.Stop,
	}
	if req.MaxTokens > 0 {
		openAIReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		openAIReq.Temperature = float32(req.Temperature)
	}

	if req.Schema != nil {
		schema, err := json.Marshal(req.Schema.Schema)
		if err != nil {
			return openAIReq, fmt.Errorf("failed to marshal response schema: %w", err)
		}
		openAIReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   schemaName(req.Schema.Name),
				Schema: json.RawMessage(schema),
			},
		}
	}

	return openAIReq, nil
}

// convertMessage converts our ChatMessage to OpenAI format. Messages with
// images are sent as multi-part content with data URLs.
func convertMessage(msg llm.ChatMessage) openai.ChatCompletionMessage {
	if len(msg.Images) == 0 {
		return openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: msg.Content,
	}}
	for _, img := range msg.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(img),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}
	return openai.ChatCompletionMessage{
		Role:         msg.Role,
		MultiContent: parts,
	}
}

func dataURL(img llm.Image) string {
	return "data:" + img.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

func schemaName(name string) string {
	if name == "" {
		return "response"
	}
	return name
}

// buildResponse converts OpenAI response to our ChatResponse.
func (a *OpenAIAdapter) buildResponse(resp openai.ChatCompletionResponse) *llm.ChatResponse {
	choice := resp.Choices[0]
	return &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		Usage: llm.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		FinishReason: string(choice.FinishReason),
		Model:        resp.Model,
	}
}

// handleError converts OpenAI errors to our error types. The API error stays
// in the chain so retry classification can see its status.
func (a *OpenAIAdapter) handleError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 401:
			return fmt.Errorf("%w: %w", llm.ErrInvalidAPIKey, apiErr)
		case 404:
			return fmt.Errorf("%w: %w", llm.ErrModelNotFound, apiErr)
		case 429:
			return fmt.Errorf("%w: %w", llm.ErrRateLimited, apiErr)
		case 400:
			if apiErr.Code == "context_length_exceeded" {
				return fmt.Errorf("%w: %w", llm.ErrContextTooLong, apiErr)
			}
		}
		return fmt.Errorf("%w: %w", llm.ErrAPIError, apiErr)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: %w", llm.ErrAPIError, reqErr)
	}

	return fmt.Errorf("%w: %w", llm.ErrAPIError, err)
}

// isRetryable returns true for rate limits and server-side failures.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrRateLimited) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case 500, 502, 503, 504:
			return true
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// availableOpenAIModels returns the list of known OpenAI models.
func availableOpenAIModels() []string {
	return []string{
		"gpt-4o",
		"gpt-4o-mini",
		"gpt-4.1",
		"gpt-4.1-mini",
		"gpt-4-turbo",
		"gpt-3.5-turbo",
		"o3-mini",
	}
}

// Verify OpenAIAdapter implements Provider interface.
var _ llm.Provider = (*OpenAIAdapter)(nil)
