package writer

import (
	"context"
	"fmt"
	"strings"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
)

// Synopsis is a generated three-act synopsis.
type Synopsis struct {
	Text string
}

// Actions stores the synopsis in the story foundation.
func (s *Synopsis) Actions() []store.Action {
	return []store.Action{store.UpdateChoice{Key: "synopsis", Value: s.Text}}
}

// Synopsis drafts a three-act synopsis from the premise and genre.
func (w *Writer) Synopsis(ctx context.Context, choices novel.Choices) (*Synopsis, error) {
	genre := novel.Deref(choices.Genre)
	if strings.TrimSpace(choices.Premise) == "" || genre == "" {
		return nil, fmt.Errorf("%w: a premise and a genre are needed for a synopsis", ErrMissingInput)
	}

	p := newPrompt("You are an experienced narrative strategist and screenwriter. Write a concise but compelling three-act synopsis for the premise and genre below.").
		quoted("Premise", choices.Premise).
		section("Genre", genre).
		bullets("Instructions",
			"Act 1 (Setup): describe the protagonist's normal world, introduce the key characters and build the inciting incident that starts the story.",
			"Act 2 (Confrontation): lay out the main obstacles, the rising conflict and the midpoint where the stakes get higher.",
			"Act 3 (Resolution): describe the climax, how the main conflict is resolved and the state of the world and characters afterwards.",
			"Each act must flow logically into the next.",
			"Answer in plain text with a clear heading per act, in the form \"Act 1 (Setup): ...\".",
		)

	text, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate synopsis: %w", err)
	}
	return &Synopsis{Text: text}, nil
}

// Starters are suggested opening scenes and inciting incidents.
type Starters struct {
	Openings  []string `json:"openings" validate:"required,min=1,dive,required"`
	Incidents []string `json:"incidents" validate:"required,min=1,dive,required"`
}

// Actions selects the first opening and the first incident.
func (s *Starters) Actions() []store.Action {
	var actions []store.Action
	if len(s.Openings) > 0 {
		actions = append(actions, store.UpdateChoice{Key: "opening", Value: s.Openings[0]})
	}
	if len(s.Incidents) > 0 {
		actions = append(actions, store.UpdateChoice{Key: "incident", Value: s.Incidents[0]})
	}
	return actions
}

var startersSchema = llm.Object(map[string]llm.Schema{
	"openings":  llm.Array("Four opening scene suggestions.", llm.String("")),
	"incidents": llm.Array("Four inciting incident suggestions.", llm.String("")),
}, "openings", "incidents")

// StoryStarters suggests four opening scenes and four inciting incidents for
// the synopsis.
func (w *Writer) StoryStarters(ctx context.Context, synopsis, genre string) (*Starters, error) {
	if strings.TrimSpace(synopsis) == "" || genre == "" {
		return nil, fmt.Errorf("%w: a synopsis and a genre are needed for story starters", ErrMissingInput)
	}

	p := newPrompt("You are a creative writing assistant. From the three-act synopsis and genre below, suggest 4 distinct, compelling opening scenes and 4 inciting incidents. Keep each suggestion short; they must directly inspire the first chapter.").
		quoted("Synopsis", synopsis).
		section("Genre", genre).
		bullets("Instructions",
			"Opening scenes establish the initial setting and mood and introduce the protagonist's normal world.",
			"Inciting incidents are specific events that start the main plot and disrupt the protagonist's world.",
			"Reply only with JSON matching the provided schema.",
		)

	raw, err := w.gen.GenerateStructured(ctx, p.String(), startersSchema, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate story starters: %w", err)
	}
	var out Starters
	if err := llm.Decode(raw, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Draft is a generated chapter and the actions that add it to the document.
type Draft struct {
	Chapter novel.Chapter

	// Index is where the chapter lands in the document.
	Index int

	NewCharacters []novel.Character
	NewLocations  []novel.Location
	NewObjects    []novel.Object

	// TitleErr is set when the title could not be generated and the
	// default title was used.
	TitleErr error

	// SummaryErr and ExtractErr record failed follow-up steps. The chapter
	// is kept without a summary or without extracted assets.
	SummaryErr error
	ExtractErr error

	actions []store.Action
}

// Actions returns the actions that apply the draft, in dispatch order.
func (d *Draft) Actions() []store.Action {
	return d.actions
}

// FirstChapter writes chapter one from the story foundation and the selected
// cast. The first selected character is the point-of-view protagonist.
func (w *Writer) FirstChapter(ctx context.Context, doc novel.Document, characterIDs []int64) (*Draft, error) {
	if !doc.Choices.Ready() {
		return nil, fmt.Errorf("%w: genre, premise, synopsis, opening and incident are required", ErrFoundationIncomplete)
	}
	if err := doc.PlotStructure.Validate(); err != nil {
		return nil, err
	}

	cast := selectCharacters(doc, characterIDs)
	if len(cast) == 0 {
		return nil, ErrNoCharacters
	}

	choices := doc.Choices
	protagonist := cast[0]
	castLines := make([]string, len(cast))
	ids := make([]int64, len(cast))
	for i, c := range cast {
		castLines[i] = describeCharacter(c)
		ids[i] = c.ID
	}

	p := newPrompt("You are an expert novelist writing a gripping first chapter. Weave every element below into a seamless narrative and follow the story blueprint closely.").
		bullets("Genre and style",
			fmt.Sprintf("Genre: %s. Evoke the atmosphere, tone and conventions of this genre.", novel.Deref(choices.Genre)),
			fmt.Sprintf("Imitate the %s.", choices.WritingStyle),
			fmt.Sprintf("Use third person limited, staying with the thoughts and feelings of the protagonist, %s.", protagonist.Name),
			"Use rich, sensory description and vary sentence structure for rhythm.",
			"Weave foreshadowing and worldbuilding in through action and dialogue rather than exposition.",
		).
		section("Plot and pacing", blueprint(doc.PlotStructure, 1)+
			"\nThis chapter is the introduction. Establish the protagonist's normal world before the inciting incident, lay the groundwork for the main conflict and hint at what the protagonist could lose or gain.").
		section("Protagonist", fmt.Sprintf("%s. Introduce them through action rather than description and reveal their immediate goal and a deeper flaw or desire.", protagonist.Name)).
		bullets("Cast in this chapter", castLines...).
		line(fmt.Sprintf("Make each character's relationship to %s clear and give every character a distinct voice.", protagonist.Name)).
		bullets("Events",
			fmt.Sprintf("The chapter opens with: %q", novel.Deref(choices.Opening)),
			fmt.Sprintf("The chapter includes this inciting incident: %q", novel.Deref(choices.Incident)),
		).
		section("Premise", choices.Premise).
		section("Three-act synopsis", choices.Synopsis).
		bullets("Output",
			fmt.Sprintf("At least %d words.", MinChapterWords),
			"Do not include a chapter title.",
			proseFormatRule,
		).
		line("Begin chapter 1 now.")

	text, err := w.gen.GenerateText(ctx, p.String())
	if err != nil {
		return nil, fmt.Errorf("failed to generate first chapter: %w", err)
	}

	chapter := novel.NewChapter(novel.DefaultChapterTitle)
	chapter.Content = cleanProse(text)
	chapter.PlotPoint = novel.PlotPointIntroduction
	chapter.CharactersInChapter = novel.IDLinks(ids...)

	w.logger.Info("first chapter generated", "words", len(strings.Fields(chapter.Content)), "cast", len(cast))
	return &Draft{
		Chapter: chapter,
		Index:   0,
		actions: []store.Action{store.ReplaceFirstChapter{Chapter: chapter}},
	}, nil
}

// selectCharacters returns the characters with the given ids, in id order
// of the request, skipping unknown ids and duplicates.
func selectCharacters(doc novel.Document, ids []int64) []novel.Character {
	seen := make(map[int64]bool, len(ids))
	var out []novel.Character
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if i, ok := doc.CharacterIndex(id); ok {
			out = append(out, doc.Characters[i])
		}
	}
	return out
}
