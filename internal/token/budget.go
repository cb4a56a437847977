package token

import (
	"github.com/azyu/novelcraft/pkg/types"
)

// ModelContextLimits maps model names to their maximum context window sizes.
var ModelContextLimits = map[string]int{
	// OpenAI models
	"gpt-4o":      128000,
	"gpt-4o-mini": 128000,
	"gpt-4.1":     1000000,
	"gpt-4-turbo": 128000,

	// Google Gemini models
	"gemini-2.5-flash":      1000000,
	"gemini-2.5-pro":        1000000,
	"gemini-2.0-flash":      1000000,
	"gemini-2.0-flash-lite": 1000000,

	// Common local models
	"llama3":   8192,
	"llama3.1": 128000,
	"mistral":  32768,
}

// DefaultContextLimit is used when the model is not recognized.
const DefaultContextLimit = 8192

// Section names a part of a chapter prompt.
type Section string

const (
	SectionInstructions Section = "instructions"
	SectionSummaries    Section = "summaries"
	SectionReferences   Section = "references"
	SectionPrevious     Section = "previous"
	SectionResponse     Section = "response"
)

// Allocation is the concrete number of tokens per section.
type Allocation struct {
	Instructions int
	Summaries    int
	References   int
	Previous     int
	Response     int
	Total        int
}

// For returns the allocation of one section, or 0 for an unknown one.
func (a Allocation) For(s Section) int {
	switch s {
	case SectionInstructions:
		return a.Instructions
	case SectionSummaries:
		return a.Summaries
	case SectionReferences:
		return a.References
	case SectionPrevious:
		return a.Previous
	case SectionResponse:
		return a.Response
	default:
		return 0
	}
}

// Chunk is a candidate piece of prompt context with its token cost.
type Chunk struct {
	ID      int64
	Label   string
	Content string
	Tokens  int
}

// Budget divides a model's context window between prompt sections.
type Budget struct {
	model     string
	maxTokens int
	ratios    types.BudgetConfig
}

// NewBudget creates a Budget for model using ratios. Zero ratios fall
// back to types.DefaultBudget; others are normalized to sum to 1.
func NewBudget(model string, ratios types.BudgetConfig) *Budget {
	return NewBudgetWithLimit(model, 0, ratios)
}

// NewBudgetWithLimit is NewBudget with an explicit context size. A
// non-positive maxTokens uses the model's known limit.
func NewBudgetWithLimit(model string, maxTokens int, ratios types.BudgetConfig) *Budget {
	if maxTokens <= 0 {
		maxTokens = ContextLimit(model)
	}
	return &Budget{
		model:     model,
		maxTokens: maxTokens,
		ratios:    NormalizeRatios(ratios),
	}
}

// ContextLimit returns the context limit for a model, or the default if unknown.
func ContextLimit(model string) int {
	if limit, ok := ModelContextLimits[model]; ok {
		return limit
	}
	return DefaultContextLimit
}

// Allocate returns the token allocations for each section.
func (b *Budget) Allocate() Allocation {
	total := float64(b.maxTokens)
	return Allocation{
		Instructions: int(total * b.ratios.Instructions),
		Summaries:    int(total * b.ratios.Summaries),
		References:   int(total * b.ratios.References),
		Previous:     int(total * b.ratios.Previous),
		Response:     int(total * b.ratios.Response),
		Total:        b.maxTokens,
	}
}

// Remaining returns how many tokens are left in section after used.
func (b *Budget) Remaining(s Section, used int) int {
	return max(0, b.Allocate().For(s)-used)
}

// SelectChunks picks chunks in order while they fit within budget. A chunk
// that does not fit is skipped so smaller later ones can still be used.
// The input is not modified.
func SelectChunks(chunks []Chunk, budget int) []Chunk {
	if len(chunks) == 0 {
		return nil
	}

	selected := make([]Chunk, 0, len(chunks))
	used := 0
	for _, c := range chunks {
		if used+c.Tokens > budget {
			continue
		}
		selected = append(selected, c)
		used += c.Tokens
	}
	return selected
}

// FitRecent keeps the longest suffix of chunks that fits within budget,
// preserving order. Used for chapter summaries, where the latest matter most.
func FitRecent(chunks []Chunk, budget int) []Chunk {
	used := 0
	start := len(chunks)
	for i := len(chunks) - 1; i >= 0; i-- {
		if used+chunks[i].Tokens > budget {
			break
		}
		used += chunks[i].Tokens
		start = i
	}
	if start == len(chunks) {
		return nil
	}
	out := make([]Chunk, len(chunks)-start)
	copy(out, chunks[start:])
	return out
}

// TotalTokens calculates the total tokens used by a slice of chunks.
func TotalTokens(chunks []Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Tokens
	}
	return total
}

// Model returns the model name this budget was configured for.
func (b *Budget) Model() string {
	return b.model
}

// MaxTokens returns the maximum context tokens.
func (b *Budget) MaxTokens() int {
	return b.maxTokens
}

// Ratios returns the normalized section ratios.
func (b *Budget) Ratios() types.BudgetConfig {
	return b.ratios
}

// ValidateRatios checks if the ratios sum to approximately 1.0.
func ValidateRatios(r types.BudgetConfig) bool {
	sum := ratioSum(r)
	return sum >= 0.99 && sum <= 1.01
}

// NormalizeRatios adjusts ratios to sum exactly to 1.0.
func NormalizeRatios(r types.BudgetConfig) types.BudgetConfig {
	sum := ratioSum(r)
	if sum <= 0 {
		return types.DefaultBudget()
	}
	return types.BudgetConfig{
		Instructions: r.Instructions / sum,
		Summaries:    r.Summaries / sum,
		References:   r.References / sum,
		Previous:     r.Previous / sum,
		Response:     r.Response / sum,
	}
}

func ratioSum(r types.BudgetConfig) float64 {
	return r.Instructions + r.Summaries + r.References + r.Previous + r.Response
}
