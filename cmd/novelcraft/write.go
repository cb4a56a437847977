package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/azyu/novelcraft/internal/app"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/tui"
	"github.com/azyu/novelcraft/internal/writer"
)

// writerSession opens the project and builds the writer. With ready set,
// the story foundation and plot structure must be complete.
func writerSession(cmd *cobra.Command, ready bool) (*app.App, *writer.Writer, error) {
	application, err := openProject(cmd, nil)
	if err != nil {
		return nil, nil, err
	}
	if ready {
		if err := tui.Ready(application.Store.Document()); err != nil {
			application.Close()
			return nil, nil, fmt.Errorf("%w (run 'novelcraft wizard' to complete it)", err)
		}
	}
	w, err := application.Writer(cmd.Context())
	if err != nil {
		application.Close()
		if errors.Is(err, app.ErrMissingAPIKey) {
			return nil, nil, fmt.Errorf("%w, run 'novelcraft auth' first", err)
		}
		return nil, nil, err
	}
	return application, w, nil
}

// progress prints what the command is waiting on.
func progress(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}

// castIDs resolves character names case-insensitively. No names selects the
// whole cast.
func castIDs(doc novel.Document, names []string) ([]int64, error) {
	if len(names) == 0 {
		ids := make([]int64, len(doc.Characters))
		for i, c := range doc.Characters {
			ids[i] = c.ID
		}
		return ids, nil
	}
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		i := slices.IndexFunc(doc.Characters, func(c novel.Character) bool {
			return strings.EqualFold(c.Name, strings.TrimSpace(name))
		})
		if i < 0 {
			return nil, fmt.Errorf("no character named %q", name)
		}
		ids = append(ids, doc.Characters[i].ID)
	}
	return ids, nil
}

// referenceIDs resolves reference titles case-insensitively.
func referenceIDs(doc novel.Document, titles []string) ([]int64, error) {
	ids := make([]int64, 0, len(titles))
	for _, title := range titles {
		i := slices.IndexFunc(doc.References, func(r novel.Reference) bool {
			return strings.EqualFold(r.Title, strings.TrimSpace(title))
		})
		if i < 0 {
			return nil, fmt.Errorf("no reference titled %q", title)
		}
		ids = append(ids, doc.References[i].ID)
	}
	return ids, nil
}

// locationArg maps a location name to its id. Anything else is passed on
// as a new place or LocationContinue.
func locationArg(doc novel.Document, location string) string {
	location = strings.TrimSpace(location)
	if location == "" || strings.EqualFold(location, writer.LocationContinue) {
		return writer.LocationContinue
	}
	for _, l := range doc.Locations {
		if strings.EqualFold(l.Name, location) {
			return strconv.FormatInt(l.ID, 10)
		}
	}
	return location
}

// applyDraft dispatches a generated chapter, moves the cursor to it and
// reports follow-up failures.
func applyDraft(out io.Writer, s *store.Store, d *writer.Draft) {
	s.DispatchAll(d.Actions()...)
	s.Dispatch(store.SetCurrentChapterIndex{Index: d.Index})

	fmt.Fprintf(out, "Chapter %d written: %s (%d words)\n", d.Index+1, d.Chapter.Title, len(strings.Fields(d.Chapter.Content)))
	for _, c := range d.NewCharacters {
		fmt.Fprintf(out, "  + character %s\n", c.Name)
	}
	for _, l := range d.NewLocations {
		fmt.Fprintf(out, "  + location %s\n", l.Name)
	}
	for _, o := range d.NewObjects {
		fmt.Fprintf(out, "  + object %s\n", o.Name)
	}
	for label, err := range map[string]error{"title": d.TitleErr, "summary": d.SummaryErr, "asset extraction": d.ExtractErr} {
		if err != nil {
			fmt.Fprintf(out, "  warning: %s failed: %v\n", label, err)
		}
	}
}

var writeCmd = &cobra.Command{
	Use:   "write",
	Short: "Generate story material with the AI writer",
}

var writeFirstCmd = &cobra.Command{
	Use:   "first [character...]",
	Short: "Write chapter one from the story foundation",
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		if len(doc.Characters) == 0 {
			return fmt.Errorf("%w, add one with 'novelcraft character add'", writer.ErrNoCharacters)
		}

		var ids []int64
		if len(args) == 0 && !assumeYes(cmd) {
			ids, err = selectCast(doc)
		} else {
			ids, err = castIDs(doc, args)
		}
		if err != nil {
			return err
		}

		if strings.TrimSpace(doc.Chapters[0].Content) != "" {
			ok, err := confirm(cmd, "Chapter 1 already has text. Replace it?", "")
			if err != nil || !ok {
				return err
			}
		}

		progress(cmd, "Writing chapter 1...")
		draft, err := w.FirstChapter(cmd.Context(), doc, ids)
		if err != nil {
			return err
		}
		applyDraft(cmd.OutOrStdout(), application.Store, draft)
		return nil
	},
}

// selectCast asks which characters appear in chapter one. The first selected
// character is the point of view.
func selectCast(doc novel.Document) ([]int64, error) {
	options := make([]huh.Option[int64], 0, len(doc.Characters))
	for _, c := range doc.Characters {
		options = append(options, huh.NewOption(fmt.Sprintf("%s (%s)", c.Name, c.Role), c.ID))
	}
	var ids []int64
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int64]().
				Title("Characters in chapter 1").
				Description("The first selected character is the point of view.").
				Options(options...).
				Validate(func(v []int64) error {
					if len(v) == 0 {
						return writer.ErrNoCharacters
					}
					return nil
				}).
				Value(&ids),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("character selection failed: %w", err)
	}
	return ids, nil
}

var writeNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Write the chapter after the last one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		intent, _ := cmd.Flags().GetString("intent")
		names, _ := cmd.Flags().GetStringSlice("character")
		location, _ := cmd.Flags().GetString("location")
		titles, _ := cmd.Flags().GetStringSlice("reference")
		noSummary, _ := cmd.Flags().GetBool("no-summary")

		req := writer.NextChapterRequest{
			Intent:    writer.Intent(intent),
			Location:  locationArg(doc, location),
			Summarize: !noSummary,
		}
		if len(names) > 0 {
			if req.CharacterIDs, err = castIDs(doc, names); err != nil {
				return err
			}
		}
		if req.ReferenceIDs, err = referenceIDs(doc, titles); err != nil {
			return err
		}

		progress(cmd, "Writing chapter %d...", len(doc.Chapters)+1)
		draft, err := w.NextChapter(cmd.Context(), doc, req)
		if err != nil {
			return err
		}
		applyDraft(cmd.OutOrStdout(), application.Store, draft)
		return nil
	},
}

// chapterEdit runs a title or summary generation for one chapter.
func chapterEdit(what string, gen func(w *writer.Writer, ctx context.Context, doc novel.Document, i int) (*writer.ChapterEdit, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		i, err := chapterIndex(doc, args)
		if err != nil {
			return err
		}
		progress(cmd, "Generating %s for chapter %d...", what, i+1)
		edit, err := gen(w, cmd.Context(), doc, i)
		if err != nil {
			if errors.Is(err, writer.ErrContentTooShort) {
				return fmt.Errorf("chapter %d needs at least %d characters of text", i+1, writer.MinContentLength)
			}
			return err
		}
		application.Store.DispatchAll(edit.Actions()...)
		fmt.Fprintf(cmd.OutOrStdout(), "Chapter %d %s: %s\n", i+1, what, edit.Value)
		return nil
	}
}

var writeTitleCmd = &cobra.Command{
	Use:   "title [chapter]",
	Short: "Generate a chapter title",
	Args:  cobra.MaximumNArgs(1),
	RunE:  chapterEdit("title", (*writer.Writer).ChapterTitle),
}

var writeSummaryCmd = &cobra.Command{
	Use:   "summary [chapter]",
	Short: "Generate a chapter summary",
	Args:  cobra.MaximumNArgs(1),
	RunE:  chapterEdit("summary", (*writer.Writer).ChapterSummary),
}

var writeSynopsisCmd = &cobra.Command{
	Use:   "synopsis",
	Short: "Draft a three-act synopsis from the genre and premise",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, false)
		if err != nil {
			return err
		}
		defer application.Close()

		choices := application.Store.Document().Choices
		if choices.Synopsis != "" {
			ok, err := confirm(cmd, "Replace the current synopsis?", firstLine(choices.Synopsis))
			if err != nil || !ok {
				return err
			}
		}

		progress(cmd, "Drafting synopsis...")
		syn, err := w.Synopsis(cmd.Context(), choices)
		if err != nil {
			return err
		}
		application.Store.DispatchAll(syn.Actions()...)
		fmt.Fprintln(cmd.OutOrStdout(), syn.Text)
		return nil
	},
}

var writeStartersCmd = &cobra.Command{
	Use:   "starters",
	Short: "Suggest opening scenes and inciting incidents and pick one of each",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, false)
		if err != nil {
			return err
		}
		defer application.Close()

		choices := application.Store.Document().Choices
		progress(cmd, "Suggesting story starters...")
		starters, err := w.StoryStarters(cmd.Context(), choices.Synopsis, novel.Deref(choices.Genre))
		if err != nil {
			return err
		}

		actions := starters.Actions()
		if !assumeYes(cmd) {
			opening, incident := starters.Openings[0], starters.Incidents[0]
			form := huh.NewForm(
				huh.NewGroup(
					huh.NewSelect[string]().
						Title("Opening scene").
						Options(huh.NewOptions(starters.Openings...)...).
						Value(&opening),
					huh.NewSelect[string]().
						Title("Inciting incident").
						Options(huh.NewOptions(starters.Incidents...)...).
						Value(&incident),
				),
			)
			if err := form.Run(); err != nil {
				return fmt.Errorf("starter selection failed: %w", err)
			}
			actions = []store.Action{
				store.UpdateChoice{Key: "opening", Value: opening},
				store.UpdateChoice{Key: "incident", Value: incident},
			}
		}
		application.Store.DispatchAll(actions...)

		c := application.Store.Document().Choices
		fmt.Fprintf(cmd.OutOrStdout(), "Opening: %s\nIncident: %s\n", novel.Deref(c.Opening), novel.Deref(c.Incident))
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [chapter]",
	Short: "Review a chapter for grammar, flow, dialogue and word choice",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		i, err := chapterIndex(doc, args)
		if err != nil {
			return err
		}
		progress(cmd, "Analyzing chapter %d...", i+1)
		report, err := w.AnalyzeWriting(cmd.Context(), doc.Chapters[i].Content)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(report.Issues) == 0 {
			fmt.Fprintln(out, "No issues found.")
			return nil
		}
		for n, issue := range report.Issues {
			fmt.Fprintf(out, "%d. %q\n   %s\n   -> %q\n", n+1, issue.Quote, issue.Issue, issue.Suggestion)
		}

		fix, _ := cmd.Flags().GetBool("fix")
		if !fix {
			return nil
		}
		text, applied := writer.ApplyIssues(doc.Chapters[i].Content, report.Issues)
		if applied > 0 {
			application.Store.Dispatch(store.SetChapterContent{Index: i, Value: text})
		}
		fmt.Fprintf(out, "%d suggestions applied.\n", applied)
		return nil
	},
}

var improveCmd = &cobra.Command{
	Use:   "improve [chapter]",
	Short: "Suggest revisions for a chapter and apply the approved ones",
	Long: `Suggest revisions for a chapter and apply the approved ones.

Focus categories: core, style, structure. Individual focuses may be named too.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		i, err := chapterIndex(doc, args)
		if err != nil {
			return err
		}
		focusNames, _ := cmd.Flags().GetStringSlice("focus")
		focuses, err := writer.ExpandFocuses(focusNames)
		if err != nil {
			return err
		}

		progress(cmd, "Reviewing chapter %d...", i+1)
		improvement, err := w.ImproveChapter(cmd.Context(), doc, i, focuses)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if improvement.Summary != "" {
			fmt.Fprintln(out, improvement.Summary)
		}
		if len(improvement.Changes) == 0 {
			fmt.Fprintln(out, "No changes suggested.")
			return nil
		}
		writer.SortChanges(improvement.Changes)

		approved := improvement.Changes
		if !assumeYes(cmd) {
			if approved, err = approveChanges(improvement.Changes); err != nil {
				return err
			}
		}
		if len(approved) == 0 {
			fmt.Fprintln(out, "No changes approved.")
			return nil
		}

		progress(cmd, "Applying %d changes...", len(approved))
		text, err := w.ApplyFixes(cmd.Context(), doc.Chapters[i].Content, approved)
		if err != nil {
			return err
		}
		asNew, _ := cmd.Flags().GetBool("new")
		revision, err := writer.Revise(application.Store.Document(), i, text, asNew)
		if err != nil {
			return err
		}
		application.Store.DispatchAll(revision.Actions()...)
		if asNew {
			fmt.Fprintf(out, "Revision added as chapter %d.\n", len(application.Store.Document().Chapters))
		} else {
			fmt.Fprintf(out, "Chapter %d revised.\n", i+1)
		}
		return nil
	},
}

func approveChanges(changes []writer.Change) ([]writer.Change, error) {
	options := make([]huh.Option[int], 0, len(changes))
	for n, c := range changes {
		label := fmt.Sprintf("%q -> %q", truncate(c.Original, 40), truncate(c.Suggestion, 40))
		options = append(options, huh.NewOption(label, n).Selected(true))
	}
	var picked []int
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[int]().
				Title("Approve changes").
				Options(options...).
				Value(&picked),
		),
	)
	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("change approval failed: %w", err)
	}
	slices.Sort(picked)
	approved := make([]writer.Change, 0, len(picked))
	for _, n := range picked {
		approved = append(approved, changes[n])
	}
	return approved, nil
}

func truncate(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}

var extractCmd = &cobra.Command{
	Use:   "extract [chapter]",
	Short: "Find new characters, locations and objects in a chapter",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		application, w, err := writerSession(cmd, true)
		if err != nil {
			return err
		}
		defer application.Close()

		doc := application.Store.Document()
		i, err := chapterIndex(doc, args)
		if err != nil {
			return err
		}
		progress(cmd, "Extracting assets from chapter %d...", i+1)
		ex, err := w.ExtractAssets(cmd.Context(), doc.Chapters[i].Content, doc)
		if err != nil {
			return err
		}
		application.Store.DispatchAll(ex.Actions()...)

		out := cmd.OutOrStdout()
		added := len(ex.NewCharacters) + len(ex.NewLocations) + len(ex.NewObjects)
		fmt.Fprintf(out, "%d new assets added.\n", added)
		for _, c := range ex.NewCharacters {
			fmt.Fprintf(out, "  + character %s\n", c.Name)
		}
		for _, l := range ex.NewLocations {
			fmt.Fprintf(out, "  + location %s\n", l.Name)
		}
		for _, o := range ex.NewObjects {
			fmt.Fprintf(out, "  + object %s\n", o.Name)
		}
		return nil
	},
}

func init() {
	intents := make([]string, len(writer.Intents))
	for i, in := range writer.Intents {
		intents[i] = string(in)
	}
	writeNextCmd.Flags().String("intent", string(writer.IntentContinue), "Where the chapter takes the story: "+strings.Join(intents, ", "))
	writeNextCmd.Flags().StringSlice("character", nil, "Characters to focus on")
	writeNextCmd.Flags().String("location", writer.LocationContinue, "Known location name, a new place, or continue")
	writeNextCmd.Flags().StringSlice("reference", nil, "Reference titles to ground the chapter in")
	writeNextCmd.Flags().Bool("no-summary", false, "Skip generating the chapter summary")

	analyzeCmd.Flags().Bool("fix", false, "Apply the suggestions to the chapter")
	improveCmd.Flags().StringSlice("focus", nil, "Focus categories or focuses (default all)")
	improveCmd.Flags().Bool("new", false, "Add the revision as a new chapter instead of replacing the text")

	writeCmd.AddCommand(writeFirstCmd)
	writeCmd.AddCommand(writeNextCmd)
	writeCmd.AddCommand(writeTitleCmd)
	writeCmd.AddCommand(writeSummaryCmd)
	writeCmd.AddCommand(writeSynopsisCmd)
	writeCmd.AddCommand(writeStartersCmd)

	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(improveCmd)
	rootCmd.AddCommand(extractCmd)
}
