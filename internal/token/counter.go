// Package token provides token counting and prompt budgeting for generation.
package token

import (
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter wraps a tiktoken encoder for token counting operations.
type Counter struct {
	encoder  *tiktoken.Tiktoken
	encoding string
}

// Default encoding for fallback.
const defaultEncoding = "cl100k_base"

// NewCounter creates a new token counter with the specified encoding.
// Supported encodings include:
//   - "cl100k_base" (GPT-4, GPT-3.5-turbo)
//   - "o200k_base" (GPT-4o)
//
// Falls back to cl100k_base if the specified encoding is not found.
// Gemini and local models have no public tokenizer; cl100k_base is used as
// an approximation for them.
func NewCounter(encoding string) (*Counter, error) {
	if encoding == "" {
		encoding = defaultEncoding
	}

	encoder, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		encoder, err = tiktoken.GetEncoding(defaultEncoding)
		if err != nil {
			return nil, err
		}
		encoding = defaultEncoding
	}

	return &Counter{
		encoder:  encoder,
		encoding: encoding,
	}, nil
}

// EncodingForModel picks the tiktoken encoding closest to a model.
func EncodingForModel(model string) string {
	if strings.HasPrefix(model, "gpt-4o") || strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") {
		return "o200k_base"
	}
	return defaultEncoding
}

// Encoding returns the current encoding name.
func (c *Counter) Encoding() string {
	return c.encoding
}

// Count returns the number of tokens in the given text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// Split divides the text into overlapping chunks of approximately chunkSize tokens.
// The overlap parameter specifies the fraction of overlap between consecutive chunks
// (0.0 = no overlap, 0.5 = 50% overlap).
func (c *Counter) Split(text string, chunkSize int, overlap float64) []string {
	if text == "" || chunkSize <= 0 {
		return nil
	}

	if overlap < 0 {
		overlap = 0
	}
	if overlap >= 1 {
		overlap = 0.9
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - int(float64(chunkSize)*overlap)
	if step <= 0 {
		step = 1
	}

	var chunks []string
	for i := 0; i < len(tokens); i += step {
		end := min(i+chunkSize, len(tokens))
		chunks = append(chunks, c.encoder.Decode(tokens[i:end]))
		if end >= len(tokens) {
			break
		}
	}

	return chunks
}

// TruncateToFit truncates text to fit within maxTokens.
// If fromEnd is true, keeps the end of the text; otherwise keeps the beginning.
func (c *Counter) TruncateToFit(text string, maxTokens int, fromEnd bool) string {
	if maxTokens <= 0 {
		return ""
	}

	tokens := c.encoder.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}

	if fromEnd {
		return c.encoder.Decode(tokens[len(tokens)-maxTokens:])
	}
	return c.encoder.Decode(tokens[:maxTokens])
}

// EstimateTokens provides a quick estimate of token count without encoding,
// at roughly 4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (utf8.RuneCountInString(text) + 3) / 4
}

// Estimator counts tokens with EstimateTokens. It needs no encoder files
// and serves when tiktoken cannot load its ranks offline.
type Estimator struct{}

// Count implements the counting half of Tokenizer.
func (Estimator) Count(text string) int {
	return EstimateTokens(text)
}

// TruncateToFit cuts on word boundaries using the estimate.
func (Estimator) TruncateToFit(text string, maxTokens int, fromEnd bool) string {
	if maxTokens <= 0 {
		return ""
	}
	if EstimateTokens(text) <= maxTokens {
		return text
	}

	words := strings.Fields(text)
	var kept []string
	used := 0
	for i := range words {
		w := words[i]
		if fromEnd {
			w = words[len(words)-1-i]
		}
		cost := EstimateTokens(w + " ")
		if used+cost > maxTokens {
			break
		}
		used += cost
		kept = append(kept, w)
	}
	if fromEnd {
		for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
			kept[i], kept[j] = kept[j], kept[i]
		}
	}
	return strings.Join(kept, " ")
}

// Split chunks on word boundaries using the estimate. Overlap is ignored.
func (e Estimator) Split(text string, chunkSize int, _ float64) []string {
	if text == "" || chunkSize <= 0 {
		return nil
	}
	var chunks []string
	var cur []string
	used := 0
	for _, w := range strings.Fields(text) {
		cost := EstimateTokens(w + " ")
		if used+cost > chunkSize && len(cur) > 0 {
			chunks = append(chunks, strings.Join(cur, " "))
			cur, used = nil, 0
		}
		cur = append(cur, w)
		used += cost
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

// Tokenizer is the counting surface shared by Counter and Estimator.
type Tokenizer interface {
	Count(text string) int
	Split(text string, chunkSize int, overlap float64) []string
	TruncateToFit(text string, maxTokens int, fromEnd bool) string
}

var (
	_ Tokenizer = (*Counter)(nil)
	_ Tokenizer = Estimator{}
)
