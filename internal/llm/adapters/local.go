package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azyu/novelcraft/internal/llm"
)

const (
	defaultTimeout     = 120 * time.Second
	defaultMaxTokens   = 2048
	defaultTemperature = 0.7
)

// LocalAdapter implements the Provider interface for local OpenAI-compatible APIs.
// It works with servers like Ollama, LM Studio, vLLM, and other compatible implementations.
type LocalAdapter struct {
	client  *http.Client
	baseURL string
	model   string
	vision  bool
}

// LocalAdapterOption configures a LocalAdapter.
type LocalAdapterOption func(*LocalAdapter)

// WithTimeout sets a custom timeout for requests.
func WithTimeout(timeout time.Duration) LocalAdapterOption {
	return func(a *LocalAdapter) {
		a.client.Timeout = timeout
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) LocalAdapterOption {
	return func(a *LocalAdapter) {
		a.client = client
	}
}

// WithVision marks the served model as accepting images.
func WithVision() LocalAdapterOption {
	return func(a *LocalAdapter) {
		a.vision = true
	}
}

// NewLocalAdapter creates a new LocalAdapter for OpenAI-compatible local servers.
// The baseURL should point to the server (e.g., "http://localhost:11434" for Ollama).
func NewLocalAdapter(baseURL, model string, opts ...LocalAdapterOption) *LocalAdapter {
	adapter := &LocalAdapter{
		client:  &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter
}

// localChatRequest represents the OpenAI-compatible chat completion request.
type localChatRequest struct {
	Model          string               `json:"model"`
	Messages       []localChatMessage   `json:"messages"`
	MaxTokens      int                  `json:"max_tokens,omitempty"`
	Temperature    float64              `json:"temperature,omitempty"`
	Stream         bool                 `json:"stream"`
	Stop           []string             `json:"stop,omitempty"`
	ResponseFormat *localResponseFormat `json:"response_format,omitempty"`
}

// localChatMessage carries either a plain string or content parts.
type localChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type localContentPart struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	ImageURL *localImageURL `json:"image_url,omitempty"`
}

type localImageURL struct {
	URL string `json:"url"`
}

type localResponseFormat struct {
	Type       string           `json:"type"`
	JSONSchema *localJSONSchema `json:"json_schema,omitempty"`
}

type localJSONSchema struct {
	Name   string     `json:"name"`
	Schema llm.Schema `json:"schema"`
}

// localChatResponse represents the OpenAI-compatible chat completion response.
type localChatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// localErrorResponse represents an error response from the API.
type localErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Chat sends a chat completion request and returns the complete response.
func (a *LocalAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	body, err := json.Marshal(a.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request canceled: %w", err)
		}
		return nil, fmt.Errorf("%w: request failed: %w", llm.ErrAPIError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(resp)
	}

	var localResp localChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&localResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", llm.ErrAPIError, err)
	}
	if len(localResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", llm.ErrAPIError)
	}

	choice := localResp.Choices[0]
	return &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    choice.Message.Role,
			Content: choice.Message.Content,
		},
		Usage: llm.TokenUsage{
			PromptTokens:     localResp.Usage.PromptTokens,
			CompletionTokens: localResp.Usage.CompletionTokens,
			TotalTokens:      localResp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
		Model:        localResp.Model,
	}, nil
}

// Capabilities returns the provider's capabilities.
func (a *LocalAdapter) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		SupportsVision:   a.vision,
		SupportsSchema:   true,
		MaxContextTokens: 8192, // Conservative default; varies by model
		MaxOutputTokens:  defaultMaxTokens,
		Models:           []string{a.model},
	}
}

// Close releases resources held by the adapter.
func (a *LocalAdapter) Close() error {
	return nil
}

// buildRequest converts our ChatRequest to the OpenAI-compatible format.
func (a *LocalAdapter) buildRequest(req llm.ChatRequest) localChatRequest {
	messages := make([]localChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = localChatMessage{Role: msg.Role, Content: msg.Content}
		if len(msg.Images) == 0 {
			continue
		}
		parts := []localContentPart{{Type: "text", Text: msg.Content}}
		for _, img := range msg.Images {
			parts = append(parts, localContentPart{
				Type:     "image_url",
				ImageURL: &localImageURL{URL: dataURL(img)},
			})
		}
		messages[i].Content = parts
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = defaultTemperature
	}

	out := localChatRequest{
		Model:       a.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Stop:        req.Stop,
	}
	if req.Schema != nil {
		out.ResponseFormat = &localResponseFormat{
			Type: "json_schema",
			JSONSchema: &localJSONSchema{
				Name:   schemaName(req.Schema.Name),
				Schema: req.Schema.Schema,
			},
		}
	}
	return out
}

// handleErrorResponse processes error responses from the API.
func (a *LocalAdapter) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	message := strings.TrimSpace(string(body))
	var errResp localErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", llm.ErrInvalidAPIKey, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: model %q: %s", llm.ErrModelNotFound, a.model, message)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", llm.ErrRateLimited, message)
	case http.StatusBadRequest:
		if strings.Contains(message, "context") && strings.Contains(message, "token") {
			return fmt.Errorf("%w: %s", llm.ErrContextTooLong, message)
		}
		return fmt.Errorf("%w: bad request - %s", llm.ErrAPIError, message)
	default:
		return fmt.Errorf("%w: HTTP %d - %s", llm.ErrAPIError, resp.StatusCode, message)
	}
}

// ModelName returns the name of the model being used.
func (a *LocalAdapter) ModelName() string {
	return a.model
}

// BaseURL returns the base URL of the server.
func (a *LocalAdapter) BaseURL() string {
	return a.baseURL
}

// Verify LocalAdapter implements Provider interface.
var _ llm.Provider = (*LocalAdapter)(nil)
