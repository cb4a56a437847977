package tui

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/tui/styles"
	"github.com/azyu/novelcraft/internal/tui/views"
	"github.com/azyu/novelcraft/internal/writer"
)

var (
	errNoWriter = errors.New("generation is not configured")
	errNoSearch = errors.New("search is not available for this project")
	errBusy     = errors.New("a generation command is still running")
	errStale    = errors.New("the manuscript changed while the command ran, result discarded")
)

// handleCommand runs a slash command.
func (m *Model) handleCommand(line string) tea.Cmd {
	parts := strings.Fields(line)
	cmd, args := strings.ToLower(parts[0]), parts[1:]
	doc := m.store.Document()

	switch cmd {
	case "/help":
		m.setView(ViewHelp)

	case "/quit", "/exit", "/q":
		return tea.Quit

	case "/back":
		m.setView(ViewManuscript)

	case "/chapters":
		m.chapters.Select(doc.CurrentChapterIndex)
		m.setView(ViewChapters)

	case "/goto":
		n, err := chapterArg(args, len(doc.Chapters))
		if err != nil {
			m.err = err
			return nil
		}
		if !m.dispatch(store.SetCurrentChapterIndex{Index: n}) {
			return nil
		}
		m.setView(ViewManuscript)

	case "/add":
		title := strings.Join(args, " ")
		if title == "" {
			title = fmt.Sprintf("Chapter %d", len(doc.Chapters)+1)
		}
		if !m.dispatch(
			store.AddChapter{Chapter: novel.NewChapter(title)},
			store.SetCurrentChapterIndex{Index: len(doc.Chapters)},
		) {
			return nil
		}
		m.setView(ViewManuscript)

	case "/delete":
		if len(doc.Chapters) == 1 {
			m.err = fmt.Errorf("the only chapter cannot be deleted")
			return nil
		}
		if !m.dispatch(store.DeleteChapter{Index: doc.CurrentChapterIndex}) {
			return nil
		}
		return m.notice.show("Chapter deleted", NoticeInfo)

	case "/toggle":
		m.dispatch(store.ToggleChapterStatus{Index: doc.CurrentChapterIndex})

	case "/plot":
		point := strings.ToLower(strings.Join(args, " "))
		if !slices.Contains(novel.PlotPoints, point) {
			m.err = fmt.Errorf("usage: /plot <%s>", strings.Join(novel.PlotPoints, "|"))
			return nil
		}
		m.dispatch(store.SetChapterPlotPoint{Index: doc.CurrentChapterIndex, Value: point})

	case "/edit":
		return m.openEditor()

	case "/wizard":
		return m.openWizard()

	case "/start":
		if err := m.gate.Unlock(doc); err != nil {
			m.err = err
			return nil
		}
		return m.notice.show("Writer unlocked", NoticeSuccess)

	case "/status":
		m.report = statusReport(doc, m.gate.Unlocked())
		m.setView(ViewReport)

	case "/search":
		if len(args) == 0 {
			m.err = fmt.Errorf("usage: /search <query>")
			return nil
		}
		return m.runSearch(strings.Join(args, " "))

	case "/fix":
		return m.applyIssues()

	case "/first", "/next", "/title", "/summary", "/improve", "/analyze", "/extract":
		if !m.gate.Unlocked() {
			m.err = Ready(doc)
			if m.err == nil {
				m.err = ErrWriterLocked
			}
			return nil
		}
		return m.generate(cmd, args, doc)

	default:
		m.err = fmt.Errorf("unknown command: %s", cmd)
	}
	return nil
}

// chapterArg parses a 1-based chapter number into an index.
func chapterArg(args []string, chapters int) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: /goto <number>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > chapters {
		return 0, fmt.Errorf("chapter must be between 1 and %d", chapters)
	}
	return n - 1, nil
}

// generate starts the generation command cmd.
func (m *Model) generate(cmd string, args []string, doc novel.Document) tea.Cmd {
	index := doc.CurrentChapterIndex

	switch cmd {
	case "/first":
		ids, err := castIDs(doc, args)
		if err != nil {
			m.err = err
			return nil
		}
		return m.startTask("Writing chapter 1", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			draft, err := w.FirstChapter(ctx, doc, ids)
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{outcome: draft, notice: "Chapter 1 written"}, nil
		})

	case "/next":
		intent := writer.IntentContinue
		if len(args) > 0 {
			intent = writer.Intent(strings.ToLower(args[0]))
		}
		return m.startTask("Writing the next chapter", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			draft, err := w.NextChapter(ctx, doc, writer.NextChapterRequest{Intent: intent, Summarize: true})
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{outcome: draft, notice: draftNotice(draft)}, nil
		})

	case "/title":
		return m.startTask("Naming the chapter", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			edit, err := w.ChapterTitle(ctx, doc, index)
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{outcome: edit, notice: "Title: " + edit.Value}, nil
		})

	case "/summary":
		return m.startTask("Summarizing the chapter", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			edit, err := w.ChapterSummary(ctx, doc, index)
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{outcome: edit, notice: "Summary saved"}, nil
		})

	case "/improve":
		focuses, err := writer.ExpandFocuses(args)
		if err != nil {
			m.err = err
			return nil
		}
		return m.startTask("Reviewing the chapter", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			imp, err := w.ImproveChapter(ctx, doc, index, focuses)
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{review: imp}, nil
		})

	case "/analyze":
		content := doc.Chapters[index].Content
		return m.startTask("Analyzing the chapter", func(ctx context.Context, w *writer.Writer, _ novel.Document) (taskResult, error) {
			report, err := w.AnalyzeWriting(ctx, content)
			if err != nil {
				return taskResult{}, err
			}
			return taskResult{report: issuesReport(report.Issues), issues: report.Issues}, nil
		})

	case "/extract":
		content := doc.Chapters[index].Content
		return m.startTask("Extracting story assets", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
			ex, err := w.ExtractAssets(ctx, content, doc)
			if err != nil {
				return taskResult{}, err
			}
			added := len(ex.NewCharacters) + len(ex.NewLocations) + len(ex.NewObjects)
			return taskResult{outcome: ex, notice: fmt.Sprintf("%d new assets added", added)}, nil
		})
	}
	return nil
}

// castIDs resolves character names to ids. No names selects the whole cast.
func castIDs(doc novel.Document, names []string) ([]int64, error) {
	if len(names) == 0 {
		ids := make([]int64, len(doc.Characters))
		for i, c := range doc.Characters {
			ids[i] = c.ID
		}
		return ids, nil
	}
	var ids []int64
	for _, name := range names {
		i := slices.IndexFunc(doc.Characters, func(c novel.Character) bool {
			return strings.EqualFold(c.Name, name)
		})
		if i < 0 {
			return nil, fmt.Errorf("no character named %q", name)
		}
		ids = append(ids, doc.Characters[i].ID)
	}
	return ids, nil
}

func draftNotice(d *writer.Draft) string {
	notice := fmt.Sprintf("Chapter %d written: %s", d.Index+1, d.Chapter.Title)
	if added := len(d.NewCharacters) + len(d.NewLocations) + len(d.NewObjects); added > 0 {
		notice += fmt.Sprintf(" (%d new assets)", added)
	}
	return notice
}

// startTask runs fn in the background. Only one task runs at a time.
func (m *Model) startTask(label string, fn taskFunc) tea.Cmd {
	if m.task != nil {
		m.err = errBusy
		return nil
	}
	if m.writer == nil {
		m.err = errNoWriter
		return nil
	}
	m.taskSeq++
	m.task = newTask(m.taskSeq, label, m.taskTimeout)
	m.task.version = m.store.Version()
	m.task.exec = m.task.run(m.writer, m.store.Document(), fn)
	m.logger.Debug("task started", "task", label)
	return tea.Batch(m.spinner.Tick, m.task.exec)
}

func (m *Model) cancelTask() {
	m.logger.Debug("task cancelled", "task", m.task.label)
	m.task.cancel()
	m.task = nil
	m.statusText = "Cancelled"
}

// handleTaskDone applies a finished task. Results of cancelled tasks are
// dropped, and so are results computed against a document that has changed
// since the task started, since their actions address chapters by index.
func (m *Model) handleTaskDone(msg taskDoneMsg) tea.Cmd {
	if m.task == nil || msg.id != m.task.id {
		return nil
	}
	started := m.task.version
	m.task = nil

	if msg.err != nil {
		m.logger.Warn("task failed", "task", msg.label, "error", msg.err)
		m.err = msg.err
		return m.notice.show(msg.label+" failed", NoticeError)
	}

	r := msg.result
	if v := m.store.Version(); v != started && (r.outcome != nil || r.review != nil) {
		m.logger.Warn("task result discarded", "task", msg.label, "started_at", started, "version", v)
		m.err = errStale
		m.setView(ViewManuscript)
		return m.notice.show(msg.label+" discarded", NoticeWarning)
	}
	if r.outcome != nil {
		m.store.DispatchAll(r.outcome.Actions()...)
	}
	if draft, ok := r.outcome.(*writer.Draft); ok {
		if m.store.Document().CurrentChapterIndex != draft.Index {
			m.store.Dispatch(store.SetCurrentChapterIndex{Index: draft.Index})
		}
		if draft.TitleErr != nil || draft.SummaryErr != nil || draft.ExtractErr != nil {
			m.logger.Warn("chapter follow-up failed",
				"title_error", draft.TitleErr, "summary_error", draft.SummaryErr, "extract_error", draft.ExtractErr)
		}
	}

	switch {
	case r.review != nil:
		m.review = newReview(m.store.Document().CurrentChapterIndex, r.review)
		m.setView(ViewReview)
	case r.report != "":
		m.issues = r.issues
		m.report = r.report
		m.setView(ViewReport)
	default:
		m.setView(ViewManuscript)
	}

	if r.notice == "" {
		return nil
	}
	return m.notice.show(r.notice, NoticeSuccess)
}

// applyReview rewrites the chapter with the approved changes.
func (m *Model) applyReview(asNew bool) tea.Cmd {
	changes := m.review.selected()
	if len(changes) == 0 {
		m.err = fmt.Errorf("no changes approved")
		return nil
	}
	index := m.review.chapter
	return m.startTask("Applying revisions", func(ctx context.Context, w *writer.Writer, doc novel.Document) (taskResult, error) {
		if index >= len(doc.Chapters) {
			return taskResult{}, writer.ErrChapterOutOfRange
		}
		text, err := w.ApplyFixes(ctx, doc.Chapters[index].Content, changes)
		if err != nil {
			return taskResult{}, err
		}
		rev, err := writer.Revise(doc, index, text, asNew)
		if err != nil {
			return taskResult{}, err
		}
		notice := "Chapter revised"
		if asNew {
			notice = "Revision added as a new chapter"
		}
		return taskResult{outcome: rev, notice: notice}, nil
	})
}

// applyIssues applies the last analysis to the current chapter.
func (m *Model) applyIssues() tea.Cmd {
	if m.task != nil {
		m.err = errBusy
		return nil
	}
	if len(m.issues) == 0 {
		m.err = fmt.Errorf("run /analyze first")
		return nil
	}
	doc := m.store.Document()
	ch, _ := doc.CurrentChapter()
	text, applied := writer.ApplyIssues(ch.Content, m.issues)
	m.issues = nil
	if applied == 0 {
		return m.notice.show("No suggestion matched the chapter text", NoticeWarning)
	}
	m.dispatch(store.SetChapterContent{Index: doc.CurrentChapterIndex, Value: text})
	m.setView(ViewManuscript)
	return m.notice.show(fmt.Sprintf("%d suggestions applied", applied), NoticeSuccess)
}

func (m *Model) runSearch(query string) tea.Cmd {
	if m.search == nil {
		m.err = errNoSearch
		return nil
	}
	results, err := m.search(query)
	if err != nil {
		m.err = err
		return nil
	}
	m.report = searchReport(query, results)
	m.setView(ViewReport)
	return nil
}

// openWizard shows the story foundation wizard over the manuscript.
func (m *Model) openWizard() tea.Cmd {
	if m.task != nil {
		m.err = errBusy
		return nil
	}
	doc := m.store.Document()
	var opts []views.WizardOption
	if src := m.writer; src != nil {
		opts = append(opts, views.WithSynopsisGenerator(func(ctx context.Context, choices novel.Choices) (string, error) {
			w, err := src(ctx)
			if err != nil {
				return "", err
			}
			syn, err := w.Synopsis(ctx, choices)
			if err != nil {
				return "", err
			}
			return syn.Text, nil
		}))
	}
	m.wizard = views.NewWizard(doc.Choices, doc.PlotStructure, opts...)
	m.wizard.Update(tea.WindowSizeMsg{Width: m.width, Height: m.height})
	m.input.Blur()
	m.view = ViewWizard
	return m.wizard.Init()
}

func (m *Model) handleWizardDone(msg views.WizardDoneMsg) tea.Cmd {
	wiz := m.wizard
	m.wizard = nil
	m.input.Focus()
	m.setView(ViewManuscript)
	if msg.Cancelled || wiz == nil {
		return m.notice.show("Wizard cancelled", NoticeInfo)
	}
	m.dispatch(wiz.Actions()...)
	if err := m.gate.Unlock(m.store.Document()); err != nil {
		m.err = err
		return m.notice.show("Foundation saved", NoticeWarning)
	}
	return m.notice.show("Foundation saved, writer unlocked", NoticeSuccess)
}

func issuesReport(issues []writer.Issue) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render(fmt.Sprintf("Writing analysis: %d issues", len(issues))))
	sb.WriteString("\n\n")
	for i, issue := range issues {
		sb.WriteString(styles.Subtitle.Render(fmt.Sprintf("%d. %s", i+1, issue.Issue)))
		sb.WriteString("\n")
		sb.WriteString(styles.Quote.Render(issue.Quote))
		sb.WriteString("\n")
		sb.WriteString(styles.Replacement.Render(issue.Suggestion))
		sb.WriteString("\n\n")
	}
	if len(issues) > 0 {
		sb.WriteString(styles.MutedText.Render("Run /fix to apply every suggestion, /back to return."))
	}
	return sb.String()
}

func searchReport(query string, results []search.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render(fmt.Sprintf("Results for %q", query)))
	sb.WriteString("\n\n")
	if len(results) == 0 {
		sb.WriteString(styles.MutedText.Render("Nothing found."))
		return sb.String()
	}
	for _, r := range results {
		sb.WriteString(styles.Subtitle.Render(r.Entry.Source() + ": " + r.Entry.Title))
		sb.WriteString("\n")
		sb.WriteString(styles.ListItem.Render(r.Snippet))
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func statusReport(doc novel.Document, unlocked bool) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render("Story foundation"))
	sb.WriteString("\n\n")

	c := doc.Choices
	rows := [][2]string{
		{"Genre", novel.Deref(c.Genre)},
		{"Style", c.WritingStyle},
		{"Premise", c.Premise},
		{"Opening", novel.Deref(c.Opening)},
		{"Incident", novel.Deref(c.Incident)},
	}
	for _, row := range rows {
		value := row[1]
		if value == "" {
			value = styles.MutedText.Render("(not set)")
		}
		sb.WriteString(fmt.Sprintf("  %-9s %s\n", row[0]+":", value))
	}

	p := doc.PlotStructure
	sb.WriteString(fmt.Sprintf("  %-9s %d chapters, conflict at %d, climax at %d\n", "Plot:", p.TotalChapters, p.ConflictChapter, p.ClimaxChapter))
	if err := Ready(doc); err != nil {
		sb.WriteString("\n" + styles.ErrorText.Render(err.Error()) + "\n")
	} else if !unlocked {
		sb.WriteString("\n" + styles.InfoText.Render("Foundation complete. Run /start to unlock the writer.") + "\n")
	}

	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%d chapters, %d characters, %d locations, %d objects, %d references\n",
		len(doc.Chapters), len(doc.Characters), len(doc.Locations), len(doc.Objects), len(doc.References)))

	if dangling := doc.DanglingLinks(); len(dangling) > 0 {
		sb.WriteString("\n" + styles.Subtitle.Render("Broken links") + "\n")
		for _, d := range dangling {
			sb.WriteString(fmt.Sprintf("  chapter %d: %s %s\n", d.ChapterIndex+1, d.Kind, d.Link))
		}
	}
	return sb.String()
}
