package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/azyu/novelcraft/internal/llm"
)

// geminiModelCapabilities maps model names to their capabilities.
var geminiModelCapabilities = map[string]llm.Capabilities{
	"gemini-2.0-flash": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
		TokenizerType:    "gemini",
	},
	"gemini-2.0-flash-lite": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
		TokenizerType:    "gemini",
	},
	"gemini-2.5-pro": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
		TokenizerType:    "gemini",
	},
	"gemini-2.5-flash": {
		SupportsVision:   true,
		SupportsSchema:   true,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
		TokenizerType:    "gemini",
	},
}

// defaultGeminiCapabilities are used when the model is not in the known list.
var defaultGeminiCapabilities = llm.Capabilities{
	SupportsVision:   true,
	SupportsSchema:   true,
	MaxContextTokens: 128000,
	MaxOutputTokens:  8192,
	TokenizerType:    "gemini",
}

// GeminiAdapter implements the Provider interface for Google's Gemini API.
type GeminiAdapter struct {
	client *genai.Client
	model  string
}

// GeminiAdapterOption configures a GeminiAdapter.
type GeminiAdapterOption func(*genai.ClientConfig)

// WithGeminiBaseURL points the client at a different endpoint.
func WithGeminiBaseURL(baseURL string) GeminiAdapterOption {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = baseURL
	}
}

// NewGeminiAdapter creates a new GeminiAdapter for Google's Gemini API.
// The model should be the model name to use (e.g., "gemini-2.5-flash").
func NewGeminiAdapter(ctx context.Context, apiKey, model string, opts ...GeminiAdapterOption) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", llm.ErrInvalidAPIKey)
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiAdapter{
		client: client,
		model:  model,
	}, nil
}

// Chat sends a generation request and returns the complete response.
func (a *GeminiAdapter) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	contents, systemInstruction := convertGeminiMessages(req.Messages)
	config := buildGeminiConfig(req, systemInstruction)

	result, err := a.client.Models.GenerateContent(ctx, a.model, contents, config)
	if err != nil {
		return nil, wrapGeminiError(err)
	}

	return a.convertResponse(result)
}

// Capabilities returns the provider's capabilities.
func (a *GeminiAdapter) Capabilities() llm.Capabilities {
	caps, ok := geminiModelCapabilities[a.model]
	if !ok {
		caps = defaultGeminiCapabilities
		// "gemini-2.5-flash-preview" matches "gemini-2.5-flash"
		for prefix, known := range geminiModelCapabilities {
			if strings.HasPrefix(a.model, prefix) {
				caps = known
				break
			}
		}
	}
	caps.Models = []string{a.model}
	return caps
}

// Close releases resources held by the adapter.
func (a *GeminiAdapter) Close() error {
	// The genai client has no Close method.
	return nil
}

// ModelName returns the name of the model being used.
func (a *GeminiAdapter) ModelName() string {
	return a.model
}

// convertGeminiMessages converts our messages to Gemini contents. System
// messages become the system instruction.
func convertGeminiMessages(messages []llm.ChatMessage) ([]*genai.Content, *genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			systemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}

		case llm.RoleUser:
			parts := []*genai.Part{{Text: msg.Content}}
			for _, img := range msg.Images {
				parts = append(parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: img.MIMEType, Data: img.Data},
				})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})

		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	return contents, systemInstruction
}

// buildGeminiConfig creates the GenerateContentConfig from our ChatRequest.
func buildGeminiConfig(req llm.ChatRequest, systemInstruction *genai.Content) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
	}

	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Stop) > 0 {
		config.StopSequences = req.Stop
	}
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseJsonSchema = map[string]any(req.Schema.Schema)
	}

	config.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
	}

	return config
}

// convertResponse converts Gemini's response to our ChatResponse format.
func (a *GeminiAdapter) convertResponse(result *genai.GenerateContentResponse) (*llm.ChatResponse, error) {
	if len(result.Candidates) == 0 {
		if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
			return &llm.ChatResponse{
				Message:      llm.ChatMessage{Role: llm.RoleAssistant},
				FinishReason: llm.FinishReasonContentFilter,
				Model:        a.model,
			}, nil
		}
		return nil, fmt.Errorf("%w: no candidates in response", llm.ErrAPIError)
	}

	candidate := result.Candidates[0]

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
	}

	response := &llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: text.String(),
		},
		FinishReason: convertFinishReason(candidate.FinishReason),
		Model:        a.model,
	}
	if result.ModelVersion != "" {
		response.Model = result.ModelVersion
	}

	if result.UsageMetadata != nil {
		response.Usage = llm.TokenUsage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(result.UsageMetadata.TotalTokenCount),
		}
	}

	return response, nil
}

// convertFinishReason converts Gemini's finish reason to our format.
func convertFinishReason(reason genai.FinishReason) string {
	switch reason {
	case genai.FinishReasonStop, "":
		return llm.FinishReasonStop
	case genai.FinishReasonMaxTokens:
		return llm.FinishReasonLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return llm.FinishReasonContentFilter
	default:
		return string(reason)
	}
}

// wrapGeminiError wraps Gemini errors in our error types.
func wrapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("request timed out: %w", err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401, 403:
			return fmt.Errorf("%w: %s", llm.ErrInvalidAPIKey, apiErr.Message)
		case 404:
			return fmt.Errorf("%w: %s", llm.ErrModelNotFound, apiErr.Message)
		case 429:
			return fmt.Errorf("%w: %s", llm.ErrRateLimited, apiErr.Message)
		case 400:
			if strings.Contains(apiErr.Message, "API key") {
				return fmt.Errorf("%w: %s", llm.ErrInvalidAPIKey, apiErr.Message)
			}
			if strings.Contains(apiErr.Message, "token") {
				return fmt.Errorf("%w: %s", llm.ErrContextTooLong, apiErr.Message)
			}
		}
		return fmt.Errorf("%w: HTTP %d - %s", llm.ErrAPIError, apiErr.Code, apiErr.Message)
	}

	return fmt.Errorf("%w: %s", llm.ErrAPIError, err.Error())
}

// Verify GeminiAdapter implements Provider interface.
var _ llm.Provider = (*GeminiAdapter)(nil)
