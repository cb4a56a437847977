package writer

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/token"
)

// Intent steers where the next chapter takes the story.
type Intent string

const (
	IntentContinue     Intent = "continue"
	IntentFlashback    Intent = "flashback"
	IntentConflict     Intent = "conflict"
	IntentNewCharacter Intent = "new_char"
)

// Intents lists the accepted intents in menu order.
var Intents = []Intent{IntentContinue, IntentFlashback, IntentConflict, IntentNewCharacter}

var intentInstructions = map[Intent]string{
	IntentContinue:     "Continue the story logically from where the previous chapter ended.",
	IntentFlashback:    "Write a flashback that reveals an important event from a character's past and ties it to the present story.",
	IntentConflict:     "Introduce a new conflict or complication that raises the stakes for the protagonist.",
	IntentNewCharacter: "Introduce a new, memorable character who changes the direction of the story.",
}

// LocationContinue keeps the chapter where the previous one ended.
const LocationContinue = "continue"

// NextChapterRequest describes the chapter to write next.
type NextChapterRequest struct {
	Intent Intent

	// CharacterIDs are the characters to focus on.
	CharacterIDs []int64

	// Location is LocationContinue or empty, the id of a location, or a
	// free-text description of a new place.
	Location string

	ReferenceIDs []int64

	// Summarize also generates the chapter summary.
	Summarize bool
}

// NextChapter writes the chapter after the last one. Title generation,
// summarizing and asset extraction run concurrently once the text is ready.
// Failures of those steps are recorded on the draft; the title falls back to
// "Chapter N".
func (w *Writer) NextChapter(ctx context.Context, doc novel.Document, req NextChapterRequest) (*Draft, error) {
	if !doc.Choices.Ready() {
		return nil, fmt.Errorf("%w: finish the story setup before writing more chapters", ErrFoundationIncomplete)
	}
	if err := doc.PlotStructure.Validate(); err != nil {
		return nil, err
	}
	if req.Intent == "" {
		req.Intent = IntentContinue
	}
	intent, ok := intentInstructions[req.Intent]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIntent, req.Intent)
	}

	number := len(doc.Chapters) + 1
	alloc := w.budget.Allocate()

	previous := lastWords(doc.Chapters[len(doc.Chapters)-1].Content, ContextWords)
	previous = w.counter.TruncateToFit(previous, alloc.Previous, true)

	summaries := token.FitRecent(w.summaryChunks(doc), alloc.Summaries)
	summaryLines := make([]string, len(summaries))
	for i, c := range summaries {
		summaryLines[i] = c.Content
	}

	references := w.selectReferences(doc, req, previous, alloc.References)
	referenceBlocks := make([]string, len(references))
	for i, c := range references {
		referenceBlocks[i] = c.Content
	}

	var referenceSection string
	if len(references) > 0 {
		referenceSection = "Treat the following material as factual ground truth for this chapter.\n\n" + strings.Join(referenceBlocks, "\n\n")
	}

	choices := doc.Choices
	p := newPrompt(fmt.Sprintf("You are an expert novelist continuing a %s novel. Write chapter %d.", orDefault(novel.Deref(choices.Genre), "general fiction"), number)).
		bullets("Style",
			fmt.Sprintf("Imitate the %s.", choices.WritingStyle),
			"Stay consistent with the established characters, tone and world.",
		).
		section("Premise", choices.Premise).
		section("Three-act synopsis", choices.Synopsis).
		section("Plot and pacing", blueprint(doc.PlotStructure, number)).
		section("Story so far", strings.Join(summaryLines, "\n")).
		section("References", referenceSection).
		quoted("End of the previous chapter", previous).
		section("This chapter", intent).
		section("Setting", w.locationLine(doc, req.Location)).
		bullets("Character focus", w.focusLines(doc, req.CharacterIDs)...).
		bullets("Output",
			fmt.Sprintf("At least %d words.", MinChapterWords),
			"Do not include a chapter title or chapter number.",
			proseFormatRule,
		)

	text, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate chapter %d: %w", number, err)
	}
	content := cleanProse(text)

	draft := &Draft{Index: len(doc.Chapters)}
	chapter := novel.NewChapter(fmt.Sprintf("Chapter %d", number))
	chapter.Content = content

	var extraction *Extraction
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		title, err := w.title(gctx, doc.Choices, content)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("title generation failed, using default", "chapter", number, "error", err)
			draft.TitleErr = err
			return nil
		}
		chapter.Title = title
		return nil
	})
	if req.Summarize {
		g.Go(func() error {
			summary, err := w.summary(gctx, content)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Warn("summary generation failed", "chapter", number, "error", err)
				draft.SummaryErr = err
				return nil
			}
			chapter.Summary = summary
			return nil
		})
	}
	g.Go(func() error {
		ex, err := w.ExtractAssets(gctx, content, doc)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("asset extraction failed", "chapter", number, "error", err)
			draft.ExtractErr = err
			return nil
		}
		extraction = ex
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chars, locs, objs := newLinkSet(), newLinkSet(), newLinkSet()
	for _, c := range selectCharacters(doc, req.CharacterIDs) {
		chars.add(c.ID)
	}
	if id, ok := w.locationID(doc, req.Location); ok {
		locs.add(id)
	}

	var actions []store.Action
	if extraction != nil {
		for _, l := range extraction.Characters {
			chars.add(l.ID)
		}
		for _, l := range extraction.Locations {
			locs.add(l.ID)
		}
		for _, l := range extraction.Objects {
			objs.add(l.ID)
		}
		draft.NewCharacters = extraction.NewCharacters
		draft.NewLocations = extraction.NewLocations
		draft.NewObjects = extraction.NewObjects
		actions = extraction.Actions()
	}
	chapter.CharactersInChapter = chars.links()
	chapter.LocationsInChapter = locs.links()
	chapter.ObjectsInChapter = objs.links()

	draft.Chapter = chapter
	draft.actions = append(actions,
		store.AddChapter{Chapter: chapter},
		store.SetCurrentChapterIndex{Index: draft.Index},
	)

	w.logger.Info("chapter generated",
		"chapter", number,
		"words", len(strings.Fields(content)),
		"summaries", len(summaries),
		"references", len(references),
		"new_assets", len(draft.NewCharacters)+len(draft.NewLocations)+len(draft.NewObjects),
	)
	return draft, nil
}

func (w *Writer) summaryChunks(doc novel.Document) []token.Chunk {
	var chunks []token.Chunk
	for i, ch := range doc.Chapters {
		summary := strings.TrimSpace(ch.Summary)
		if summary == "" {
			continue
		}
		line := fmt.Sprintf("Chapter %d: %s", i+1, summary)
		chunks = append(chunks, token.Chunk{
			ID:      int64(i),
			Label:   ch.Title,
			Content: line,
			Tokens:  w.counter.Count(line),
		})
	}
	return chunks
}

// selectReferences returns the requested references that fit in budget.
// When they do not all fit and a ranker is set, the most relevant go first.
func (w *Writer) selectReferences(doc novel.Document, req NextChapterRequest, recent string, budget int) []token.Chunk {
	var chunks []token.Chunk
	seen := make(map[int64]bool, len(req.ReferenceIDs))
	for _, id := range req.ReferenceIDs {
		i, ok := doc.ReferenceIndex(id)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ref := doc.References[i]
		block := fmt.Sprintf("Reference: %s\nContent: %s", ref.Title, strings.TrimSpace(ref.Content))
		chunks = append(chunks, token.Chunk{
			ID:      ref.ID,
			Label:   ref.Title,
			Content: block,
			Tokens:  w.counter.Count(block),
		})
	}
	if token.TotalTokens(chunks) <= budget {
		return chunks
	}

	if w.ranker != nil {
		query := strings.TrimSpace(intentInstructions[req.Intent] + " " + firstWordsOnly(recent, 60))
		ranked, err := w.ranker.RankReferences(query, len(chunks))
		if err != nil {
			w.logger.Warn("reference ranking failed", "error", err)
		} else {
			chunks = rankChunks(chunks, ranked)
		}
	}
	selected := token.SelectChunks(chunks, budget)
	w.logger.Debug("references trimmed to budget", "requested", len(chunks), "kept", len(selected), "budget", budget)
	return selected
}

// rankChunks orders chunks by their position in ranked. Unranked chunks
// keep their order after the ranked ones.
func rankChunks(chunks []token.Chunk, ranked []int64) []token.Chunk {
	out := slices.Clone(chunks)
	pos := func(id int64) int {
		if i := slices.Index(ranked, id); i >= 0 {
			return i
		}
		return len(ranked)
	}
	slices.SortStableFunc(out, func(a, b token.Chunk) int {
		return pos(a.ID) - pos(b.ID)
	})
	return out
}

func firstWordsOnly(s string, n int) string {
	out, _ := firstWords(s, n)
	return out
}

func (w *Writer) locationID(doc novel.Document, location string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(location), 10, 64)
	if err != nil {
		return 0, false
	}
	_, ok := doc.LocationIndex(id)
	return id, ok
}

func (w *Writer) locationLine(doc novel.Document, location string) string {
	location = strings.TrimSpace(location)
	if location == "" || location == LocationContinue {
		return "Continue in the location where the previous chapter ended."
	}
	if id, ok := w.locationID(doc, location); ok {
		i, _ := doc.LocationIndex(id)
		l := doc.Locations[i]
		return fmt.Sprintf("The chapter takes place in %s - %s", l.Name, orDefault(l.Description, "no description yet"))
	}
	return "The chapter moves to a new place: " + location
}

func (w *Writer) focusLines(doc novel.Document, ids []int64) []string {
	cast := selectCharacters(doc, ids)
	lines := make([]string, len(cast))
	for i, c := range cast {
		lines[i] = fmt.Sprintf("%s (%s)", c.Name, orDefault(roleLabel(c.Role), "role not set"))
	}
	return lines
}

// ChapterEdit sets one generated field of an existing chapter.
type ChapterEdit struct {
	Index int
	Value string

	action store.Action
}

// Actions applies the edit.
func (e *ChapterEdit) Actions() []store.Action {
	return []store.Action{e.action}
}

// ChapterTitle suggests a title for chapter index.
func (w *Writer) ChapterTitle(ctx context.Context, doc novel.Document, index int) (*ChapterEdit, error) {
	ch, err := chapterAt(doc, index)
	if err != nil {
		return nil, err
	}
	if len([]rune(strings.TrimSpace(ch.Content))) < MinContentLength {
		return nil, ErrContentTooShort
	}
	title, err := w.title(ctx, doc.Choices, ch.Content)
	if err != nil {
		return nil, err
	}
	return &ChapterEdit{Index: index, Value: title, action: store.SetChapterTitle{Index: index, Value: title}}, nil
}

// ChapterSummary summarizes chapter index in a few sentences.
func (w *Writer) ChapterSummary(ctx context.Context, doc novel.Document, index int) (*ChapterEdit, error) {
	ch, err := chapterAt(doc, index)
	if err != nil {
		return nil, err
	}
	if len([]rune(strings.TrimSpace(ch.Content))) < MinContentLength {
		return nil, ErrContentTooShort
	}
	summary, err := w.summary(ctx, ch.Content)
	if err != nil {
		return nil, err
	}
	return &ChapterEdit{Index: index, Value: summary, action: store.SetChapterSummary{Index: index, Value: summary}}, nil
}

func (w *Writer) title(ctx context.Context, choices novel.Choices, content string) (string, error) {
	excerpt, truncated := firstWords(content, TitleExcerptWords)
	if truncated {
		excerpt += " ..."
	}
	p := newPrompt("You are an editor naming a chapter of a novel.").
		section("Genre", orDefault(novel.Deref(choices.Genre), "General Fiction")).
		section("Style", choices.WritingStyle).
		quoted("Chapter opening", excerpt).
		bullets("Instructions",
			"Suggest one evocative chapter title of 2 to 5 words that fits the genre and the content.",
			"Reply with the title only: no quotes, no markdown, no chapter number.",
		)

	text, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return "", fmt.Errorf("failed to generate title: %w", err)
	}
	title := cleanTitle(text)
	if title == "" {
		return "", fmt.Errorf("failed to generate title: empty title")
	}
	return title, nil
}

func (w *Writer) summary(ctx context.Context, content string) (string, error) {
	p := newPrompt("You are an editor keeping a chapter-by-chapter outline of a novel.").
		quoted("Chapter", content).
		bullets("Instructions",
			"Summarize the key events, character developments and revelations of this chapter in 2 to 4 sentences.",
			"Write plain prose without markdown or lists.",
		)

	text, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return cleanProse(text), nil
}
