// Package tui provides the terminal user interface using Bubble Tea.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/tui/styles"
	"github.com/azyu/novelcraft/internal/tui/views"
	"github.com/azyu/novelcraft/internal/writer"
)

// ViewState represents the current view mode.
type ViewState int

const (
	ViewManuscript ViewState = iota
	ViewHelp
	ViewChapters
	ViewReport
	ViewReview
	ViewEditor
	ViewWizard
)

// WriterSource returns the generation workflows, creating the provider on
// first use.
type WriterSource func(ctx context.Context) (*writer.Writer, error)

// SearchFunc runs a full-text query over the project.
type SearchFunc func(query string) ([]search.SearchResult, error)

type keyMap struct {
	Quit        key.Binding
	Cancel      key.Binding
	Submit      key.Binding
	Edit        key.Binding
	Save        key.Binding
	PrevChapter key.Binding
	NextChapter key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:        key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "cancel / quit")),
		Cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel / back")),
		Submit:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run command")),
		Edit:        key.NewBinding(key.WithKeys("ctrl+e"), key.WithHelp("ctrl+e", "edit chapter")),
		Save:        key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("ctrl+s", "save edit")),
		PrevChapter: key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "previous chapter")),
		NextChapter: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next chapter")),
	}
}

// Model is the manuscript view: the current chapter, a command line and the
// panes opened from it.
type Model struct {
	store       *store.Store
	gate        *Gate
	writer      WriterSource
	search      SearchFunc
	projectName string
	logger      *slog.Logger
	taskTimeout time.Duration

	// View state
	view       ViewState
	width      int
	height     int
	ready      bool
	err        error
	statusText string
	keys       keyMap
	notice     Notice

	viewport viewport.Model
	input    textarea.Model
	editor   textarea.Model
	spinner  spinner.Model
	chapters list.Model
	wizard   *views.WizardModel
	review   *review

	report string
	issues []writer.Issue

	task    *task
	taskSeq int
	version uint64
}

// Option configures a Model.
type Option func(*Model)

// WithGate shares the writer gate, so import hooks can lock it.
func WithGate(g *Gate) Option {
	return func(m *Model) {
		m.gate = g
	}
}

// WithWriter enables the generation commands.
func WithWriter(src WriterSource) Option {
	return func(m *Model) {
		m.writer = src
	}
}

// WithSearch enables /search.
func WithSearch(fn SearchFunc) Option {
	return func(m *Model) {
		m.search = fn
	}
}

// WithProjectName sets the name shown in the header.
func WithProjectName(name string) Option {
	return func(m *Model) {
		m.projectName = name
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Model) {
		m.logger = logger
	}
}

// WithTaskTimeout bounds each generation command.
func WithTaskTimeout(d time.Duration) Option {
	return func(m *Model) {
		m.taskTimeout = d
	}
}

// New creates the manuscript model for s. The gate opens right away when
// the document already has a complete foundation.
func New(s *store.Store, opts ...Option) *Model {
	input := textarea.New()
	input.Placeholder = "Type a command... (/help for commands)"
	input.Focus()
	input.CharLimit = 2000
	input.SetWidth(80)
	input.SetHeight(1)
	input.ShowLineNumbers = false
	input.KeyMap.InsertNewline.SetEnabled(false)

	editor := textarea.New()
	editor.ShowLineNumbers = false
	editor.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = styles.SelectedItem
	delegate.Styles.NormalTitle = styles.ListItem
	chapters := list.New(nil, delegate, 80, 20)
	chapters.Title = "Chapters"
	chapters.SetShowStatusBar(false)
	chapters.SetFilteringEnabled(false)
	chapters.SetShowHelp(false)
	chapters.Styles.Title = styles.Title

	m := &Model{
		store:       s,
		view:        ViewManuscript,
		keys:        defaultKeyMap(),
		input:       input,
		editor:      editor,
		spinner:     sp,
		chapters:    chapters,
		taskTimeout: DefaultTaskTimeout,
		logger:      slog.Default().With("component", "tui"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.gate == nil {
		m.gate = &Gate{}
	}
	_ = m.gate.Unlock(s.Document())
	return m
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return textarea.Blink
}

// Update handles messages.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		if m.wizard != nil {
			m.wizard.Update(msg)
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if m.task != nil {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case taskDoneMsg:
		return m, m.handleTaskDone(msg)

	case clearNoticeMsg:
		m.notice.clear(msg)
		return m, nil

	case views.WizardDoneMsg:
		return m, m.handleWizardDone(msg)
	}

	if m.view == ViewWizard && m.wizard != nil {
		_, cmd := m.wizard.Update(msg)
		return m, tea.Batch(append(cmds, cmd)...)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	if !m.ready {
		m.viewport = viewport.New(width, height-6)
		m.viewport.YPosition = 2
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = height - 6
	}
	m.input.SetWidth(width - 4)
	m.editor.SetWidth(width - 4)
	m.editor.SetHeight(max(3, height-6))
	m.chapters.SetSize(width-4, height-6)
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		if m.task != nil {
			m.cancelTask()
			return m, nil
		}
		return m, tea.Quit
	}

	switch m.view {
	case ViewWizard:
		_, cmd := m.wizard.Update(msg)
		return m, cmd
	case ViewEditor:
		return m.handleEditorKey(msg)
	case ViewReview:
		return m.handleReviewKey(msg)
	case ViewChapters:
		return m.handleChaptersKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Cancel):
		if m.task != nil {
			m.cancelTask()
			return m, nil
		}
		if m.view != ViewManuscript {
			m.setView(ViewManuscript)
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keys.Edit):
		return m, m.openEditor()

	case key.Matches(msg, m.keys.PrevChapter):
		m.dispatch(store.SetCurrentChapterIndex{Index: m.store.Document().CurrentChapterIndex - 1})
		return m, nil

	case key.Matches(msg, m.keys.NextChapter):
		m.dispatch(store.SetCurrentChapterIndex{Index: m.store.Document().CurrentChapterIndex + 1})
		return m, nil

	case msg.Type == tea.KeyPgUp, msg.Type == tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleEditorKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Save):
		if !m.dispatch(store.SetCurrentChapterContent{Content: m.editor.Value()}) {
			return m, nil
		}
		m.editor.Blur()
		m.input.Focus()
		m.setView(ViewManuscript)
		return m, m.notice.show("Chapter saved", NoticeSuccess)
	case key.Matches(msg, m.keys.Cancel):
		m.editor.Blur()
		m.input.Focus()
		m.setView(ViewManuscript)
		return m, m.notice.show("Edit discarded", NoticeInfo)
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m *Model) handleReviewKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.task != nil {
		if key.Matches(msg, m.keys.Cancel) {
			m.cancelTask()
		}
		return m, nil
	}
	switch msg.String() {
	case "up", "k":
		m.review.up()
	case "down", "j":
		m.review.down()
	case " ":
		m.review.toggle()
	case "r":
		return m, m.applyReview(false)
	case "n":
		return m, m.applyReview(true)
	case "esc":
		m.review = nil
		m.setView(ViewManuscript)
		return m, m.notice.show("Revision discarded", NoticeInfo)
	}
	m.refresh()
	return m, nil
}

func (m *Model) handleChaptersKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.setView(ViewManuscript)
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		if item, ok := m.chapters.SelectedItem().(chapterItem); ok {
			m.dispatch(store.SetCurrentChapterIndex{Index: item.index})
		}
		m.setView(ViewManuscript)
		return m, nil
	}
	var cmd tea.Cmd
	m.chapters, cmd = m.chapters.Update(msg)
	return m, cmd
}

// handleSubmit processes the command line.
func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.Reset()
	if line == "" {
		return m, nil
	}
	if !strings.HasPrefix(line, "/") {
		m.err = fmt.Errorf("commands start with /, try /help")
		return m, nil
	}
	return m, m.handleCommand(line)
}

// dispatch applies actions and re-renders. The document is read-only while
// a generation task runs; dispatch reports whether the actions were applied.
func (m *Model) dispatch(actions ...store.Action) bool {
	if m.task != nil {
		m.err = errBusy
		return false
	}
	m.store.DispatchAll(actions...)
	m.refresh()
	return true
}

func (m *Model) setView(v ViewState) {
	m.view = v
	m.refresh()
}

func (m *Model) openEditor() tea.Cmd {
	if m.task != nil {
		m.err = errBusy
		return nil
	}
	ch, ok := m.store.Document().CurrentChapter()
	if !ok {
		return nil
	}
	m.editor.SetValue(ch.Content)
	m.input.Blur()
	m.view = ViewEditor
	return m.editor.Focus()
}

// refresh re-renders the viewport from the current document.
func (m *Model) refresh() {
	if v := m.store.Version(); v != m.version || m.chapters.Items() == nil {
		m.version = v
		m.chapters.SetItems(chapterItems(m.store.Document()))
	}
	if !m.ready {
		return
	}

	var content string
	switch m.view {
	case ViewManuscript:
		content = m.renderManuscript()
	case ViewHelp:
		content = m.renderHelp()
	case ViewReport:
		content = m.report
	case ViewReview:
		if m.review != nil {
			content = m.review.render(styles.Width(m.width))
		}
	}
	m.viewport.SetContent(content)
	if m.view != ViewManuscript {
		m.viewport.GotoTop()
	}
}

// chapterItem implements list.Item for the chapters pane.
type chapterItem struct {
	index   int
	chapter novel.Chapter
}

func (i chapterItem) Title() string {
	return fmt.Sprintf("%d. %s", i.index+1, i.chapter.Title)
}

func (i chapterItem) Description() string {
	return fmt.Sprintf("%s · %s · %d words", i.chapter.Status, i.chapter.PlotPoint, len(strings.Fields(i.chapter.Content)))
}

func (i chapterItem) FilterValue() string { return i.chapter.Title }

func chapterItems(doc novel.Document) []list.Item {
	items := make([]list.Item, len(doc.Chapters))
	for i, ch := range doc.Chapters {
		items[i] = chapterItem{index: i, chapter: ch}
	}
	return items
}

// renderManuscript renders the current chapter.
func (m *Model) renderManuscript() string {
	doc := m.store.Document()
	ch, ok := doc.CurrentChapter()
	if !ok {
		return ""
	}

	var sb strings.Builder
	heading := fmt.Sprintf("Chapter %d of %d: %s", doc.CurrentChapterIndex+1, len(doc.Chapters), ch.Title)
	sb.WriteString(styles.ChapterHeading.Render(heading))
	sb.WriteString("\n")
	sb.WriteString(styles.Status(ch.Status == novel.StatusFinal))
	sb.WriteString(styles.MutedText.Render(fmt.Sprintf("  plot point: %s  ·  %d words", ch.PlotPoint, len(strings.Fields(ch.Content)))))
	sb.WriteString("\n\n")

	if strings.TrimSpace(ch.Content) == "" {
		sb.WriteString(styles.MutedText.Render("This chapter is empty. Use /first or /next to write it, or ctrl+e to edit."))
	} else {
		sb.WriteString(styles.Prose.Width(styles.Width(m.width)).Render(ch.Content))
	}

	if ch.Summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(styles.Subtitle.Width(styles.Width(m.width)).Render("Summary: " + ch.Summary))
	}
	return sb.String()
}

// renderHelp renders the help view.
func (m *Model) renderHelp() string {
	help := `
NOVELCRAFT - Help

Writing (needs an unlocked writer):
  /first [names]     - Write chapter 1 with the named characters (all when omitted)
  /next [intent]     - Write the next chapter (continue, flashback, conflict, new_char)
  /title             - Generate a title for this chapter
  /summary           - Generate a summary for this chapter
  /improve [focus]   - Propose revisions (core, style, structure or a focus name)
  /analyze           - Find weak spots in this chapter
  /fix               - Apply the suggestions of the last analysis
  /extract           - Add the characters, places and objects this chapter introduces

Chapters:
  /chapters          - Browse chapters
  /goto <n>          - Jump to chapter n
  /add [title]       - Add an empty chapter
  /delete            - Delete this chapter
  /toggle            - Toggle draft / final
  /plot <point>      - Set the plot point

Project:
  /wizard            - Edit the story foundation
  /start             - Unlock the writer once the foundation is complete
  /status            - Show the foundation and broken links
  /search <query>    - Search chapters, references and assets
  /back              - Return to the manuscript
  /quit              - Exit

Keys:
  ctrl+e  edit chapter     ctrl+s  save edit
  ctrl+p  previous chapter ctrl+n  next chapter
  esc     cancel / back    ctrl+c  cancel / quit
`
	return styles.InfoText.Render(help)
}

// View renders the TUI.
func (m *Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == ViewWizard && m.wizard != nil {
		return m.wizard.View()
	}

	var sb strings.Builder

	name := m.projectName
	if name == "" {
		name = "Untitled"
	}
	badge := styles.LockedBadge.Render("writer locked")
	if m.gate.Unlocked() {
		badge = styles.UnlockedBadge.Render("writer ready")
	}
	sb.WriteString(styles.Header.Render("NOVELCRAFT - "+name) + "  " + badge)
	sb.WriteString("\n")

	switch m.view {
	case ViewChapters:
		sb.WriteString(m.chapters.View())
	case ViewEditor:
		sb.WriteString(styles.FocusedBorder.Render(m.editor.View()))
	default:
		sb.WriteString(m.viewport.View())
	}
	sb.WriteString("\n")

	if m.task != nil {
		sb.WriteString(m.spinner.View() + " " + m.task.label + "... (esc to cancel)\n")
	}
	if m.err != nil {
		sb.WriteString(styles.ErrorText.Render("Error: "+m.err.Error()) + "\n")
		m.err = nil
	}
	if m.statusText != "" {
		sb.WriteString(styles.StatusBar.Render(m.statusText) + "\n")
		m.statusText = ""
	}

	switch m.view {
	case ViewManuscript, ViewHelp, ViewReport:
		sb.WriteString(styles.InputPrompt.Render("> "))
		sb.WriteString(m.input.View())
	case ViewEditor:
		sb.WriteString(styles.HelpDesc.Render(m.keys.Save.Help().Key + " save  " + m.keys.Cancel.Help().Key + " discard"))
	}

	helpHint := styles.HelpKey.Render("/help") + styles.HelpDesc.Render(" for commands")
	sb.WriteString("\n")
	sb.WriteString(lipgloss.PlaceHorizontal(m.width, lipgloss.Right, helpHint))

	return overlayTopRight(m.notice.View(m.width/2), sb.String(), 1)
}
