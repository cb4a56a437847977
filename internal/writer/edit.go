package writer

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
)

// Issue is one writing problem found in a passage.
type Issue struct {
	Quote      string `json:"quote" validate:"required"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion" validate:"required"`
}

// WritingReport lists the issues found by AnalyzeWriting.
type WritingReport struct {
	Issues []Issue `json:"issues" validate:"dive"`
}

var writingSchema = llm.Object(map[string]llm.Schema{
	"issues": llm.Array("Three to five concrete issues.", llm.Object(map[string]llm.Schema{
		"quote":      llm.String("The exact text from the passage, copied verbatim."),
		"issue":      llm.String("What is wrong with it."),
		"suggestion": llm.String("A replacement for the quoted text."),
	}, "quote", "issue", "suggestion")),
}, "issues")

// AnalyzeWriting reviews a passage for grammar, flow, dialogue and word choice.
func (w *Writer) AnalyzeWriting(ctx context.Context, text string) (*WritingReport, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to analyze", ErrMissingInput)
	}

	p := newPrompt("You are a meticulous fiction editor. Review the passage below and point out 3 to 5 of its most important weaknesses.").
		quoted("Passage", text).
		bullets("Instructions",
			"Look at grammar, sentence flow, dialogue and word choice.",
			"Quote the problematic text exactly as it appears so it can be found and replaced.",
			"Each suggestion replaces the quote and must fit back into the passage unchanged.",
			"Reply only with JSON matching the provided schema.",
		)

	raw, err := w.gen.GenerateStructured(ctx, p.String(), writingSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze writing: %w", err)
	}
	var report WritingReport
	if err := llm.Decode(raw, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ApplyIssues replaces the first occurrence of each issue's quote with its
// suggestion. It returns the new text and the number of issues applied.
func ApplyIssues(text string, issues []Issue) (string, int) {
	applied := 0
	for _, issue := range issues {
		if issue.Quote == "" || !strings.Contains(text, issue.Quote) {
			continue
		}
		text = strings.Replace(text, issue.Quote, issue.Suggestion, 1)
		applied++
	}
	return text, applied
}

// Focus is an aspect of a manuscript that ImproveManuscript works on.
type Focus string

const (
	FocusParagraphs            Focus = "paragraphs"
	FocusDescriptions          Focus = "descriptions"
	FocusDialogue              Focus = "dialogue"
	FocusCharacterExpression   Focus = "characterExpression"
	FocusWritingStyle          Focus = "writingStyle"
	FocusGrammar               Focus = "grammar"
	FocusParagraphStructure    Focus = "paragraphStructure"
	FocusDescriptiveParagraphs Focus = "descriptiveParagraphs"
	FocusParagraphTypes        Focus = "paragraphTypes"
	FocusPlotPacing            Focus = "plotPacing"
	FocusParagraphPatterns     Focus = "paragraphPatterns"
	FocusPunctuation           Focus = "punctuation"
	FocusEffectiveSentences    Focus = "effectiveSentences"
)

// FocusCategories groups focuses under the names offered in the editor.
var FocusCategories = map[string][]Focus{
	"core":      {FocusParagraphs, FocusPunctuation, FocusEffectiveSentences, FocusGrammar},
	"style":     {FocusDescriptions, FocusDialogue, FocusCharacterExpression, FocusWritingStyle},
	"structure": {FocusParagraphStructure, FocusDescriptiveParagraphs, FocusParagraphTypes, FocusParagraphPatterns, FocusPlotPacing},
}

var focusGuides = map[Focus]string{
	FocusParagraphs:            "Paragraphs: one idea or beat per paragraph. Break when the speaker, the place, the time or the focus changes.",
	FocusDescriptions:          "Descriptions: prefer concrete sensory detail to abstract statements, and show emotion through the body and actions rather than naming it.",
	FocusDialogue:              "Dialogue: every line should reveal character or move the plot. Keep tags simple and let each speaker sound distinct.",
	FocusCharacterExpression:   "Character expression: reveal inner life through gesture, choice and subtext, and keep reactions consistent with the character.",
	FocusWritingStyle:          "Writing style: keep the voice consistent with the requested style and cut filler words and clichés.",
	FocusGrammar:               "Grammar: fix agreement, tense consistency, misplaced modifiers and spelling.",
	FocusParagraphStructure:    "Paragraph structure: open with a clear lead sentence, develop it, and end on a line that hands off to the next paragraph.",
	FocusDescriptiveParagraphs: "Descriptive paragraphs: order details spatially or by importance and anchor them to a character's perception.",
	FocusParagraphTypes:        "Paragraph types: balance action, dialogue, description and reflection so no mode runs too long.",
	FocusPlotPacing:            "Plot pacing: speed up with short sentences and scene cuts in tense moments, slow down for emotional beats, and remove scenes that do not move the story.",
	FocusParagraphPatterns:     "Paragraph patterns: vary paragraph length and openings to avoid monotony.",
	FocusPunctuation:           "Punctuation: use standard quotation marks for dialogue, avoid stacked exclamation marks and use commas and dashes deliberately.",
	FocusEffectiveSentences:    "Effective sentences: prefer active voice and strong verbs, trim redundancy and vary sentence length for rhythm.",
}

// AllFocuses returns every focus in a stable order.
func AllFocuses() []Focus {
	var out []Focus
	for _, name := range []string{"core", "style", "structure"} {
		out = append(out, FocusCategories[name]...)
	}
	return out
}

// ExpandFocuses resolves focus and category names into focuses without
// duplicates. No names means every focus.
func ExpandFocuses(names []string) ([]Focus, error) {
	if len(names) == 0 {
		return AllFocuses(), nil
	}
	var out []Focus
	add := func(f Focus) {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if group, ok := FocusCategories[strings.ToLower(name)]; ok {
			for _, f := range group {
				add(f)
			}
			continue
		}
		if _, ok := focusGuides[Focus(name)]; !ok {
			return nil, fmt.Errorf("%w: unknown focus %q", ErrMissingInput, name)
		}
		add(Focus(name))
	}
	return out, nil
}

// Change is one suggested revision of a manuscript.
type Change struct {
	Original   string `json:"original" validate:"required"`
	Suggestion string `json:"suggestion" validate:"required"`
	Reasoning  string `json:"reasoning"`
}

// Improvement is the result of ImproveManuscript.
type Improvement struct {
	Summary string   `json:"summaryOfChanges"`
	Changes []Change `json:"detailedChanges" validate:"dive"`
}

var improvementSchema = llm.Object(map[string]llm.Schema{
	"summaryOfChanges": llm.String("An overview of the revision in two or three sentences."),
	"detailedChanges": llm.Array("Five to seven specific changes.", llm.Object(map[string]llm.Schema{
		"original":   llm.String("The exact text to change, copied verbatim."),
		"suggestion": llm.String("The improved text."),
		"reasoning":  llm.String("Why the change helps, naming the problem it fixes."),
	}, "original", "suggestion", "reasoning")),
}, "summaryOfChanges", "detailedChanges")

// ImproveManuscript proposes revisions of text for the given focuses.
// The changes come back sorted with SortChanges.
func (w *Writer) ImproveManuscript(ctx context.Context, text string, focuses []Focus, style string) (*Improvement, error) {
	return w.improve(ctx, text, focuses, style, "")
}

// ImproveChapter is ImproveManuscript for chapter index, with the project
// outline as context for continuity problems.
func (w *Writer) ImproveChapter(ctx context.Context, doc novel.Document, index int, focuses []Focus) (*Improvement, error) {
	ch, err := chapterAt(doc, index)
	if err != nil {
		return nil, err
	}
	return w.improve(ctx, ch.Content, focuses, doc.Choices.WritingStyle, ProjectOutline(doc))
}

func (w *Writer) improve(ctx context.Context, text string, focuses []Focus, style, outline string) (*Improvement, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text to improve", ErrMissingInput)
	}
	if len(focuses) == 0 {
		focuses = AllFocuses()
	}
	guides := make([]string, 0, len(focuses))
	for _, f := range focuses {
		if g, ok := focusGuides[f]; ok {
			guides = append(guides, g)
		}
	}

	p := newPrompt("You are a senior fiction editor. Improve the manuscript below, concentrating on the listed areas.").
		section("Target style", style).
		section("Project outline", outline).
		bullets("Focus areas", guides...).
		quoted("Manuscript", text).
		bullets("Instructions",
			"Propose 5 to 7 specific changes, most important first.",
			"Copy each original passage exactly as it appears in the manuscript.",
			"Flag plot holes and inconsistencies with the outline before style issues.",
			"When a change touches dialogue, every new speaker starts a new paragraph.",
			"Reply only with JSON matching the provided schema.",
		)

	raw, err := w.gen.GenerateStructured(ctx, p.String(), improvementSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to improve manuscript: %w", err)
	}
	var out Improvement
	if err := llm.Decode(raw, &out); err != nil {
		return nil, err
	}
	SortChanges(out.Changes)
	return &out, nil
}

var changePriorities = [][]string{
	{"plot hole", "inconsistency", "inconsistent", "grammar", "sentence structure", "punctuation"},
	{"flow", "pacing", "readability"},
	{"word choice", "dialogue", "description", "style"},
}

func changePriority(c Change) int {
	reasoning := strings.ToLower(c.Reasoning)
	for rank, keywords := range changePriorities {
		for _, k := range keywords {
			if strings.Contains(reasoning, k) {
				return rank
			}
		}
	}
	return len(changePriorities)
}

// SortChanges orders changes by the problem their reasoning names:
// correctness first, then readability, then style. Ties keep their order.
func SortChanges(changes []Change) {
	slices.SortStableFunc(changes, func(a, b Change) int {
		return changePriority(a) - changePriority(b)
	})
}

// ProjectOutline renders the chapter titles, plot points and summaries.
func ProjectOutline(doc novel.Document) string {
	blocks := make([]string, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		blocks[i] = fmt.Sprintf("Chapter %d: %s\nPlot point: %s\nSummary: %s",
			i+1, ch.Title, ch.PlotPoint, orDefault(ch.Summary, "none"))
	}
	return strings.Join(blocks, "\n---\n")
}

// ApplyFixes rewrites text with the accepted changes worked in.
func (w *Writer) ApplyFixes(ctx context.Context, text string, changes []Change) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text to revise", ErrMissingInput)
	}
	if len(changes) == 0 {
		return text, nil
	}

	var sb strings.Builder
	for i, c := range changes {
		fmt.Fprintf(&sb, "%d. Replace: %q\n   With: %q\n", i+1, c.Original, c.Suggestion)
	}
	p := newPrompt("You are a fiction editor applying approved revisions to a manuscript.").
		quoted("Manuscript", text).
		section("Approved changes", sb.String()).
		bullets("Instructions",
			"Return the full manuscript with every change applied and the surrounding text adjusted so it reads naturally.",
			"Do not make any other changes.",
			proseFormatRule,
		)

	out, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return "", fmt.Errorf("failed to apply fixes: %w", err)
	}
	return cleanProse(out), nil
}

// Revision is revised chapter text, either replacing the chapter or added
// after the last one.
type Revision struct {
	Index        int
	Content      string
	AsNewChapter bool

	chapters int
}

// Revise prepares a revision of chapter index.
func Revise(doc novel.Document, index int, content string, asNewChapter bool) (*Revision, error) {
	if _, err := chapterAt(doc, index); err != nil {
		return nil, err
	}
	return &Revision{
		Index:        index,
		Content:      content,
		AsNewChapter: asNewChapter,
		chapters:     len(doc.Chapters),
	}, nil
}

// Actions replaces the chapter content or appends a "Chapter N (Revised)"
// chapter.
func (r *Revision) Actions() []store.Action {
	if !r.AsNewChapter {
		return []store.Action{store.SetChapterContent{Index: r.Index, Value: r.Content}}
	}
	chapter := novel.NewChapter(fmt.Sprintf("Chapter %d (Revised)", r.chapters+1))
	chapter.Content = r.Content
	return []store.Action{store.AddChapter{Chapter: chapter}}
}
