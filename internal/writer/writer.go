// Package writer runs the generation workflows of the novel assistant. Each
// workflow builds a prompt from the document, calls the generation client and
// returns a typed result together with the store actions that apply it.
// Workflows never dispatch; the caller decides when to apply the actions.
package writer

import (
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/token"
	"github.com/azyu/novelcraft/pkg/types"
)

// Workflow precondition errors.
var (
	// ErrFoundationIncomplete is returned when the story foundation lacks a
	// field the first chapter prompt needs.
	ErrFoundationIncomplete = errors.New("story foundation is incomplete")

	// ErrNoCharacters is returned when the first chapter has no cast.
	ErrNoCharacters = errors.New("select at least one character")

	// ErrMissingInput is returned when a required prompt input is empty.
	ErrMissingInput = errors.New("missing input")

	// ErrContentTooShort is returned when a chapter has too little text to
	// title or summarize.
	ErrContentTooShort = errors.New("chapter content is too short")

	// ErrChapterOutOfRange is returned for an index outside the chapter list.
	ErrChapterOutOfRange = errors.New("chapter index out of range")

	// ErrUnknownAssetKind is returned for an asset kind other than character,
	// location or object.
	ErrUnknownAssetKind = errors.New("unknown asset kind")

	// ErrUnknownIntent is returned for a next-chapter intent that is not one
	// of the Intent constants.
	ErrUnknownIntent = errors.New("unknown chapter intent")
)

const (
	// MinContentLength is the number of characters a chapter needs before it
	// can be titled or summarized.
	MinContentLength = 50

	// MinDescriptionLength is the shortest text description AnalyzeAsset accepts.
	MinDescriptionLength = 20

	// ContextWords is how much of the previous chapter a new chapter sees.
	ContextWords = 500

	// TitleExcerptWords is how much of a chapter the title prompt sees.
	TitleExcerptWords = 300

	// MinChapterWords is the length asked of generated chapters.
	MinChapterWords = 2000
)

// ReferenceRanker orders references by relevance to a query.
type ReferenceRanker interface {
	RankReferences(query string, limit int) ([]int64, error)
}

// Writer runs generation workflows against a Generator.
type Writer struct {
	gen     llm.Generator
	counter token.Tokenizer
	budget  *token.Budget
	ranker  ReferenceRanker
	ids     *novel.IDSource
	logger  *slog.Logger
}

// Option configures a Writer.
type Option func(*Writer)

// WithTokenizer sets the token counter used for prompt budgeting.
func WithTokenizer(t token.Tokenizer) Option {
	return func(w *Writer) {
		w.counter = t
	}
}

// WithBudget sets how the model context is divided between prompt sections.
func WithBudget(b *token.Budget) Option {
	return func(w *Writer) {
		w.budget = b
	}
}

// WithReferenceRanker enables relevance ranking of references that do not
// all fit in the prompt.
func WithReferenceRanker(r ReferenceRanker) Option {
	return func(w *Writer) {
		w.ranker = r
	}
}

// WithIDSource sets the id source for extracted assets.
func WithIDSource(ids *novel.IDSource) Option {
	return func(w *Writer) {
		w.ids = ids
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Writer) {
		w.logger = logger
	}
}

// New creates a Writer on top of gen.
func New(gen llm.Generator, opts ...Option) *Writer {
	w := &Writer{
		gen:     gen,
		counter: token.Estimator{},
		ids:     novel.Default,
		logger:  slog.Default().With("component", "writer"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.budget == nil {
		w.budget = token.NewBudget("", types.DefaultBudget())
	}
	return w
}

// Outcome is a workflow result that can be applied to the document.
type Outcome interface {
	Actions() []store.Action
}

var titleNoise = regexp.MustCompile(`["*#_]`)

// cleanTitle strips quotes and markdown emphasis from a generated title.
func cleanTitle(s string) string {
	s = titleNoise.ReplaceAllString(s, "")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// cleanProse turns generated chapter text into plain novel prose. Markdown
// syntax is removed and dialogue dashes at paragraph starts are dropped.
func cleanProse(s string) string {
	plain := storage.PlainText(s)
	lines := strings.Split(plain, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimPrefix(line, "— ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// firstWords returns up to n words of s.
func firstWords(s string, n int) (string, bool) {
	words := strings.Fields(s)
	if len(words) <= n {
		return strings.Join(words, " "), false
	}
	return strings.Join(words[:n], " "), true
}

// lastWords returns the final n words of s.
func lastWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[len(words)-n:]
	}
	return strings.Join(words, " ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func chapterAt(doc novel.Document, index int) (novel.Chapter, error) {
	if index < 0 || index >= len(doc.Chapters) {
		return novel.Chapter{}, ErrChapterOutOfRange
	}
	return doc.Chapters[index], nil
}
