package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Generator is the generation surface the writing workflows depend on.
type Generator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateStructured(ctx context.Context, prompt string, schema Schema, image *Image) (json.RawMessage, error)
}

// Client adds rate limiting, timeouts and structured output handling on
// top of a Provider.
type Client struct {
	provider    Provider
	limiter     *rate.Limiter
	timeout     time.Duration
	system      string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRateLimit allows rpm requests per minute with the given burst.
// A non-positive rpm disables limiting.
func WithRateLimit(rpm, burst int) ClientOption {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), max(burst, 1))
	}
}

// WithRequestTimeout bounds each provider call.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithSystemPrompt sets the system message sent with every request.
func WithSystemPrompt(prompt string) ClientOption {
	return func(c *Client) {
		c.system = prompt
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ClientOption {
	return func(c *Client) {
		c.temperature = t
	}
}

// WithMaxTokens caps the length of each response.
func WithMaxTokens(n int) ClientOption {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// WithClientLogger sets the logger for request diagnostics.
func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient wraps provider.
func NewClient(provider Provider, opts ...ClientOption) *Client {
	c := &Client{
		provider:    provider,
		timeout:     120 * time.Second,
		system:      DefaultSystemPrompt,
		temperature: 0.8,
		logger:      slog.Default().With("component", "llm"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultSystemPrompt frames every request.
const DefaultSystemPrompt = `You are an expert novelist and editor collaborating with an author.
Respect the author's creative vision and the established facts of their story.
Follow the requested output format exactly.`

// Provider returns the wrapped provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// GenerateText returns the model's plain text answer to prompt.
func (c *Client) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := c.chat(ctx, ChatRequest{
		Messages: c.messages(prompt, nil),
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// GenerateStructured asks for JSON matching schema and returns it once it
// parses. An optional image is attached to the prompt.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, schema Schema, image *Image) (json.RawMessage, error) {
	var images []Image
	if image != nil {
		if !c.provider.Capabilities().SupportsVision {
			return nil, ErrVisionNotSupported
		}
		images = []Image{*image}
	}

	req := ChatRequest{Temperature: 0.4}
	if c.provider.Capabilities().SupportsSchema {
		req.Schema = &ResponseSchema{Name: "response", Schema: schema}
	} else {
		prompt += "\n\nRespond only with a JSON value matching this JSON Schema, without code fences:\n" + schema.JSON()
	}
	req.Messages = c.messages(prompt, images)

	resp, err := c.chat(ctx, req)
	if err != nil {
		return nil, err
	}

	data := StripCodeFence(resp.Message.Content)
	if data == "" {
		return nil, ErrEmptyResponse
	}
	if !json.Valid([]byte(data)) {
		c.logger.Warn("structured response is not JSON", "bytes", len(data))
		return nil, fmt.Errorf("%w: response is not valid JSON", ErrMalformedResponse)
	}
	return json.RawMessage(data), nil
}

func (c *Client) messages(prompt string, images []Image) []ChatMessage {
	var msgs []ChatMessage
	if c.system != "" {
		msgs = append(msgs, NewSystemMessage(c.system))
	}
	return append(msgs, NewUserMessage(prompt, images...))
}

func (c *Client) chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.provider.Chat(ctx, req)
	if err != nil {
		c.logger.Warn("generation failed", "error", err, "elapsed", time.Since(start))
		return nil, err
	}
	c.logger.Debug("generation complete",
		"model", resp.Model,
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"elapsed", time.Since(start),
	)

	if resp.FinishReason == FinishReasonContentFilter {
		return nil, ErrContentFiltered
	}
	return resp, nil
}

var _ Generator = (*Client)(nil)
