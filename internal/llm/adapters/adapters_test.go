package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/llm"
)

const completionBody = `{
	"id": "cmpl-1",
	"object": "chat.completion",
	"model": "served-model",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "The bells rang."}, "finish_reason": "stop"}],
	"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func completionServer(t *testing.T, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ============================================================================
// Local adapter
// ============================================================================

func TestLocalAdapter_Chat(t *testing.T) {
	t.Run("sends request and parses response", func(t *testing.T) {
		var body map[string]any
		srv := completionServer(t, &body)

		a := NewLocalAdapter(srv.URL+"/", "llama3")
		resp, err := a.Chat(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{llm.NewSystemMessage("sys"), llm.NewUserMessage("hello")},
		})
		require.NoError(t, err)

		assert.Equal(t, "The bells rang.", resp.Message.Content)
		assert.Equal(t, "stop", resp.FinishReason)
		assert.Equal(t, "served-model", resp.Model)
		assert.Equal(t, 16, resp.Usage.TotalTokens)

		assert.Equal(t, "llama3", body["model"])
		assert.Equal(t, float64(defaultMaxTokens), body["max_tokens"])
		assert.Equal(t, defaultTemperature, body["temperature"])
		assert.NotContains(t, body, "response_format")
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "hello", msgs[1].(map[string]any)["content"])
	})

	t.Run("sends schema as response format", func(t *testing.T) {
		var body map[string]any
		srv := completionServer(t, &body)

		a := NewLocalAdapter(srv.URL, "llama3")
		_, err := a.Chat(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{llm.NewUserMessage("title?")},
			Schema:   &llm.ResponseSchema{Schema: llm.Object(map[string]llm.Schema{"title": llm.String("")}, "title")},
		})
		require.NoError(t, err)

		format := body["response_format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])
		js := format["json_schema"].(map[string]any)
		assert.Equal(t, "response", js["name"])
		assert.Equal(t, "object", js["schema"].(map[string]any)["type"])
	})

	t.Run("sends images as content parts", func(t *testing.T) {
		var body map[string]any
		srv := completionServer(t, &body)

		a := NewLocalAdapter(srv.URL, "llava", WithVision())
		assert.True(t, a.Capabilities().SupportsVision)

		_, err := a.Chat(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{llm.NewUserMessage("who is this?", llm.Image{MIMEType: "image/png", Data: []byte("abc")})},
		})
		require.NoError(t, err)

		parts := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "text", parts[0].(map[string]any)["type"])
		img := parts[1].(map[string]any)["image_url"].(map[string]any)
		assert.Equal(t, "data:image/png;base64,YWJj", img["url"])
	})
}

func TestLocalAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{}`, want: llm.ErrInvalidAPIKey},
		{name: "missing model", status: http.StatusNotFound, body: `{"error":{"message":"no such model"}}`, want: llm.ErrModelNotFound},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `slow down`, want: llm.ErrRateLimited},
		{name: "context too long", status: http.StatusBadRequest, body: `{"error":{"message":"context length exceeds token limit"}}`, want: llm.ErrContextTooLong},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, want: llm.ErrAPIError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewLocalAdapter(srv.URL, "m").Chat(context.Background(), llm.ChatRequest{
				Messages: []llm.ChatMessage{llm.NewUserMessage("x")},
			})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		_, err := NewLocalAdapter(srv.URL, "m").Chat(context.Background(), llm.ChatRequest{})
		assert.ErrorIs(t, err, llm.ErrAPIError)
	})
}

// ============================================================================
// OpenAI adapter
// ============================================================================

func TestNewOpenAIAdapter(t *testing.T) {
	_, err := NewOpenAIAdapter("", "gpt-4o")
	assert.ErrorIs(t, err, llm.ErrInvalidAPIKey)

	a, err := NewOpenAIAdapter("sk-test", "")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", a.Model())

	caps := a.Capabilities()
	assert.True(t, caps.SupportsSchema)
	assert.True(t, caps.SupportsVision)
	assert.Contains(t, caps.Models, "gpt-4o-mini")

	unknown, err := NewOpenAIAdapter("sk-test", "my-finetune")
	require.NoError(t, err)
	assert.False(t, unknown.Capabilities().SupportsSchema)
}

func TestOpenAIAdapter_Chat(t *testing.T) {
	t.Run("structured request with image", func(t *testing.T) {
		var body map[string]any
		srv := completionServer(t, &body)

		a, err := NewOpenAIAdapter("sk-test", "gpt-4o", WithOpenAIBaseURL(srv.URL+"/v1"))
		require.NoError(t, err)

		resp, err := a.Chat(context.Background(), llm.ChatRequest{
			Messages: []llm.ChatMessage{
				llm.NewSystemMessage("sys"),
				llm.NewUserMessage("describe", llm.Image{MIMEType: "image/jpeg", Data: []byte("abc")}),
			},
			Schema: &llm.ResponseSchema{Name: "asset", Schema: llm.Object(map[string]llm.Schema{"name": llm.String("")})},
		})
		require.NoError(t, err)
		assert.Equal(t, "The bells rang.", resp.Message.Content)
		assert.Equal(t, 12, resp.Usage.PromptTokens)

		format := body["response_format"].(map[string]any)
		assert.Equal(t, "json_schema", format["type"])
		assert.Equal(t, "asset", format["json_schema"].(map[string]any)["name"])

		user := body["messages"].([]any)[1].(map[string]any)
		parts := user["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
	})

	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
				return
			}
			_, _ = w.Write([]byte(completionBody))
		}))
		defer srv.Close()

		a, err := NewOpenAIAdapter("sk-test", "gpt-4o",
			WithOpenAIBaseURL(srv.URL+"/v1"),
			WithOpenAIRetry(2, time.Millisecond))
		require.NoError(t, err)

		resp, err := a.Chat(context.Background(), llm.ChatRequest{Messages: []llm.ChatMessage{llm.NewUserMessage("x")}})
		require.NoError(t, err)
		assert.Equal(t, "The bells rang.", resp.Message.Content)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("does not retry auth errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
		}))
		defer srv.Close()

		a, err := NewOpenAIAdapter("sk-test", "gpt-4o",
			WithOpenAIBaseURL(srv.URL+"/v1"),
			WithOpenAIRetry(3, time.Millisecond))
		require.NoError(t, err)

		_, err = a.Chat(context.Background(), llm.ChatRequest{Messages: []llm.ChatMessage{llm.NewUserMessage("x")}})
		assert.ErrorIs(t, err, llm.ErrInvalidAPIKey)
		assert.Equal(t, int32(1), calls.Load())
	})
}

// ============================================================================
// Gemini helpers
// ============================================================================

func TestConvertGeminiMessages(t *testing.T) {
	contents, system := convertGeminiMessages([]llm.ChatMessage{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("look", llm.Image{MIMEType: "image/png", Data: []byte{1}}),
		{Role: llm.RoleAssistant, Content: "seen"},
	})

	require.NotNil(t, system)
	assert.Equal(t, "sys", system.Parts[0].Text)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "image/png", contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, "model", contents[1].Role)
}

func TestBuildGeminiConfig(t *testing.T) {
	schema := llm.Object(map[string]llm.Schema{"title": llm.String("")}, "title")
	cfg := buildGeminiConfig(llm.ChatRequest{
		MaxTokens:   256,
		Temperature: 0.4,
		Schema:      &llm.ResponseSchema{Schema: schema},
	}, nil)

	assert.Equal(t, int32(256), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.4, *cfg.Temperature, 0.001)
	assert.Equal(t, "application/json", cfg.ResponseMIMEType)
	assert.Equal(t, map[string]any(schema), cfg.ResponseJsonSchema)
	assert.Len(t, cfg.SafetySettings, 4)

	plain := buildGeminiConfig(llm.ChatRequest{}, nil)
	assert.Empty(t, plain.ResponseMIMEType)
	assert.Nil(t, plain.Temperature)
}

func TestConvertFinishReason(t *testing.T) {
	assert.Equal(t, llm.FinishReasonStop, convertFinishReason("STOP"))
	assert.Equal(t, llm.FinishReasonLength, convertFinishReason("MAX_TOKENS"))
	assert.Equal(t, llm.FinishReasonContentFilter, convertFinishReason("SAFETY"))
	assert.Equal(t, llm.FinishReasonStop, convertFinishReason(""))
}

func TestNewGeminiAdapter_RequiresKey(t *testing.T) {
	_, err := NewGeminiAdapter(context.Background(), "", "gemini-2.5-flash")
	assert.ErrorIs(t, err, llm.ErrInvalidAPIKey)
}
