// Package views provides TUI view components for the novelcraft application.
package views

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/tui/styles"
)

// WizardStep represents a step in the wizard.
type WizardStep int

const (
	StepGenre WizardStep = iota
	StepStyle
	StepPremise
	StepSynopsis
	StepOpening
	StepIncident
	StepPlot
	StepEnding
)

const totalSteps = 8

// SynopsisFunc drafts a synopsis from the choices made so far.
type SynopsisFunc func(ctx context.Context, choices novel.Choices) (string, error)

// WizardDoneMsg is sent when an embedded wizard finishes.
type WizardDoneMsg struct {
	Cancelled bool
}

type synopsisMsg struct {
	text string
	err  error
}

// plot fields, in focus order.
const (
	fieldTotal = iota
	fieldConflict
	fieldClimax
)

// WizardModel implements tea.Model for the story foundation wizard.
type WizardModel struct {
	currentStep WizardStep
	totalSteps  int
	choices     novel.Choices
	plot        novel.PlotStructure
	completed   bool
	cancelled   bool
	err         error

	standalone bool
	synopsisFn SynopsisFunc
	generating bool

	// Input components
	genreList     list.Model
	styleList     list.Model
	openingList   list.Model
	incidentList  list.Model
	endingList    list.Model
	premiseInput  textarea.Model
	synopsisInput textarea.Model
	plotInputs    []textinput.Model
	plotFocus     int
	spinner       spinner.Model

	// Dimensions
	width  int
	height int
	ready  bool
}

// WizardOption configures a WizardModel.
type WizardOption func(*WizardModel)

// Standalone makes the wizard quit the program when it finishes instead of
// sending WizardDoneMsg.
func Standalone() WizardOption {
	return func(m *WizardModel) {
		m.standalone = true
	}
}

// WithSynopsisGenerator enables ctrl+g on the synopsis step.
func WithSynopsisGenerator(fn SynopsisFunc) WizardOption {
	return func(m *WizardModel) {
		m.synopsisFn = fn
	}
}

// listItem implements list.Item for the selection steps.
type listItem struct {
	name        string
	description string
}

func (i listItem) Title() string       { return i.name }
func (i listItem) Description() string { return i.description }
func (i listItem) FilterValue() string { return i.name }

func newList(title string, items []listItem, height int) list.Model {
	listItems := make([]list.Item, len(items))
	for i, it := range items {
		listItems[i] = it
	}

	delegate := list.NewDefaultDelegate()
	delegate.Styles.SelectedTitle = styles.SelectedItem
	delegate.Styles.NormalTitle = styles.ListItem
	delegate.ShowDescription = slices.ContainsFunc(items, func(it listItem) bool { return it.description != "" })

	l := list.New(listItems, delegate, 60, height)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.Styles.Title = styles.Title
	return l
}

// selectName moves the cursor of l to the item named name, if present.
func selectName(l *list.Model, name string) {
	for i, it := range l.Items() {
		if it.(listItem).name == name {
			l.Select(i)
			return
		}
	}
}

func names(values []string) []listItem {
	items := make([]listItem, len(values))
	for i, v := range values {
		items[i] = listItem{name: v}
	}
	return items
}

// withCurrent prepends current to the suggestions when it is not one of them.
func withCurrent(suggestions []string, current string) []string {
	if current == "" || slices.Contains(suggestions, current) {
		return suggestions
	}
	return append([]string{current}, suggestions...)
}

// NewWizard creates a wizard prefilled from the document's current
// foundation.
func NewWizard(choices novel.Choices, plot novel.PlotStructure, opts ...WizardOption) *WizardModel {
	m := &WizardModel{
		currentStep: StepGenre,
		totalSteps:  totalSteps,
		choices:     choices.Clone(),
		plot:        plot,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.genreList = newList("Select a Genre", names(novel.Genres), 16)
	selectName(&m.genreList, novel.Deref(choices.Genre))

	styleItems := make([]listItem, len(novel.WritingStyles))
	for i, s := range novel.WritingStyles {
		styleItems[i] = listItem{name: s.Name, description: s.Description}
	}
	m.styleList = newList("Select a Writing Style", styleItems, 16)
	selectName(&m.styleList, choices.WritingStyle)

	m.premiseInput = textarea.New()
	m.premiseInput.Placeholder = "A lighthouse keeper finds a door in the sea..."
	m.premiseInput.SetWidth(60)
	m.premiseInput.SetHeight(4)
	m.premiseInput.CharLimit = 2000
	m.premiseInput.SetValue(choices.Premise)

	m.synopsisInput = textarea.New()
	m.synopsisInput.Placeholder = "Act 1 (Setup): ..."
	m.synopsisInput.SetWidth(60)
	m.synopsisInput.SetHeight(8)
	m.synopsisInput.CharLimit = 8000
	m.synopsisInput.SetValue(choices.Synopsis)

	m.rebuildSeeds()

	m.endingList = newList("Select an Ending", names(novel.EndingTypes), 8)
	selectName(&m.endingList, novel.Deref(plot.Ending))

	labels := []string{"Total chapters: ", "Conflict chapter: ", "Climax chapter: "}
	values := []int{plot.TotalChapters, plot.ConflictChapter, plot.ClimaxChapter}
	m.plotInputs = make([]textinput.Model, len(labels))
	for i, label := range labels {
		ti := textinput.New()
		ti.Prompt = label
		ti.CharLimit = 3
		ti.Width = 6
		ti.PromptStyle = styles.InputPrompt
		ti.TextStyle = styles.InputText
		if values[i] > 0 {
			ti.SetValue(strconv.Itoa(values[i]))
		}
		m.plotInputs[i] = ti
	}

	m.spinner = spinner.New()
	m.spinner.Spinner = spinner.Dot
	m.spinner.Style = styles.Spinner
	return m
}

// rebuildSeeds refreshes the opening and incident suggestions for the
// chosen genre.
func (m *WizardModel) rebuildSeeds() {
	seeds := novel.SeedsForGenre(novel.Deref(m.choices.Genre))
	opening := novel.Deref(m.choices.Opening)
	incident := novel.Deref(m.choices.Incident)

	m.openingList = newList("Select an Opening Scene", names(withCurrent(seeds.Openings, opening)), 10)
	selectName(&m.openingList, opening)
	m.incidentList = newList("Select an Inciting Incident", names(withCurrent(seeds.Incidents, incident)), 10)
	selectName(&m.incidentList, incident)
}

// Init initializes the model.
func (m *WizardModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages.
func (m *WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

		contentWidth := min(80, msg.Width-4)
		m.premiseInput.SetWidth(contentWidth)
		m.synopsisInput.SetWidth(contentWidth)
		for _, l := range []*list.Model{&m.genreList, &m.styleList, &m.openingList, &m.incidentList, &m.endingList} {
			l.SetWidth(contentWidth)
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case synopsisMsg:
		m.generating = false
		if msg.err != nil {
			m.err = fmt.Errorf("failed to draft synopsis: %w", msg.err)
			return m, nil
		}
		m.synopsisInput.SetValue(msg.text)
		m.err = nil
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, m.updateActive(msg)
}

// updateActive forwards msg to the component of the current step.
func (m *WizardModel) updateActive(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.currentStep {
	case StepGenre:
		m.genreList, cmd = m.genreList.Update(msg)
	case StepStyle:
		m.styleList, cmd = m.styleList.Update(msg)
	case StepPremise:
		m.premiseInput, cmd = m.premiseInput.Update(msg)
	case StepSynopsis:
		m.synopsisInput, cmd = m.synopsisInput.Update(msg)
	case StepOpening:
		m.openingList, cmd = m.openingList.Update(msg)
	case StepIncident:
		m.incidentList, cmd = m.incidentList.Update(msg)
	case StepPlot:
		m.plotInputs[m.plotFocus], cmd = m.plotInputs[m.plotFocus].Update(msg)
	case StepEnding:
		m.endingList, cmd = m.endingList.Update(msg)
	}
	return cmd
}

// handleKeyMsg processes keyboard input.
func (m *WizardModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.generating {
		if msg.Type == tea.KeyCtrlC {
			return m.finish(true)
		}
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m.finish(true)

	case tea.KeyEnter:
		if err := m.validateCurrentStep(); err != nil {
			m.err = err
			return m, nil
		}
		m.saveCurrentStep()
		return m.nextStep()

	case tea.KeyTab:
		// Skip, keeping the previous value.
		return m.nextStep()

	case tea.KeyCtrlG:
		if m.currentStep == StepSynopsis && m.synopsisFn != nil {
			return m, m.generateSynopsis()
		}
		return m, nil

	case tea.KeyUp, tea.KeyDown:
		if m.currentStep == StepPlot {
			m.movePlotFocus(msg.Type == tea.KeyDown)
			return m, textinput.Blink
		}

	case tea.KeyBackspace:
		if m.canGoBack() {
			return m.previousStep()
		}
	}

	return m, m.updateActive(msg)
}

func (m *WizardModel) generateSynopsis() tea.Cmd {
	choices := m.choices.Clone()
	choices.Premise = strings.TrimSpace(m.premiseInput.Value())
	fn := m.synopsisFn
	m.generating = true
	m.err = nil
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		text, err := fn(context.Background(), choices)
		return synopsisMsg{text: text, err: err}
	})
}

func (m *WizardModel) movePlotFocus(down bool) {
	m.plotInputs[m.plotFocus].Blur()
	if down {
		m.plotFocus = (m.plotFocus + 1) % len(m.plotInputs)
	} else {
		m.plotFocus = (m.plotFocus + len(m.plotInputs) - 1) % len(m.plotInputs)
	}
	m.plotInputs[m.plotFocus].Focus()
}

// canGoBack determines if backspace should navigate back.
func (m *WizardModel) canGoBack() bool {
	switch m.currentStep {
	case StepGenre:
		return false
	case StepPremise:
		return m.premiseInput.Value() == ""
	case StepSynopsis:
		return m.synopsisInput.Value() == ""
	case StepPlot:
		return m.plotInputs[m.plotFocus].Value() == ""
	default:
		return true
	}
}

func (m *WizardModel) finish(cancelled bool) (tea.Model, tea.Cmd) {
	m.cancelled = cancelled
	m.completed = !cancelled
	if m.standalone {
		return m, tea.Quit
	}
	return m, func() tea.Msg { return WizardDoneMsg{Cancelled: cancelled} }
}

// nextStep advances to the next step.
func (m *WizardModel) nextStep() (tea.Model, tea.Cmd) {
	if m.currentStep >= WizardStep(m.totalSteps-1) {
		if err := m.plot.Validate(); err != nil {
			m.err = err
			return m, nil
		}
		return m.finish(false)
	}

	m.currentStep++
	m.err = nil
	return m, m.focusCurrentStep()
}

// previousStep goes back to the previous step.
func (m *WizardModel) previousStep() (tea.Model, tea.Cmd) {
	if m.currentStep > StepGenre {
		m.currentStep--
		m.err = nil
		return m, m.focusCurrentStep()
	}
	return m, nil
}

// focusCurrentStep focuses the appropriate input for the current step.
func (m *WizardModel) focusCurrentStep() tea.Cmd {
	m.premiseInput.Blur()
	m.synopsisInput.Blur()
	for i := range m.plotInputs {
		m.plotInputs[i].Blur()
	}

	switch m.currentStep {
	case StepPremise:
		m.premiseInput.Focus()
		return textarea.Blink
	case StepSynopsis:
		m.synopsisInput.Focus()
		return textarea.Blink
	case StepPlot:
		m.plotFocus = fieldTotal
		m.plotInputs[fieldTotal].Focus()
		return textinput.Blink
	}
	return nil
}

func selected(l list.Model) (string, bool) {
	item, ok := l.SelectedItem().(listItem)
	return item.name, ok
}

// saveCurrentStep saves the current step's value to the result.
func (m *WizardModel) saveCurrentStep() {
	switch m.currentStep {
	case StepGenre:
		if name, ok := selected(m.genreList); ok && name != novel.Deref(m.choices.Genre) {
			m.choices.Genre = novel.Ptr(name)
			m.rebuildSeeds()
		}
	case StepStyle:
		if name, ok := selected(m.styleList); ok {
			m.choices.WritingStyle = name
		}
	case StepPremise:
		m.choices.Premise = strings.TrimSpace(m.premiseInput.Value())
	case StepSynopsis:
		m.choices.Synopsis = strings.TrimSpace(m.synopsisInput.Value())
	case StepOpening:
		if name, ok := selected(m.openingList); ok {
			m.choices.Opening = novel.Ptr(name)
		}
	case StepIncident:
		if name, ok := selected(m.incidentList); ok {
			m.choices.Incident = novel.Ptr(name)
		}
	case StepPlot:
		values := m.plotValues()
		m.plot.TotalChapters = values[fieldTotal]
		m.plot.ConflictChapter = values[fieldConflict]
		m.plot.ClimaxChapter = values[fieldClimax]
	case StepEnding:
		if name, ok := selected(m.endingList); ok {
			m.plot.Ending = novel.Ptr(name)
		}
	}
}

func (m *WizardModel) plotValues() []int {
	values := make([]int, len(m.plotInputs))
	for i, in := range m.plotInputs {
		values[i], _ = strconv.Atoi(strings.TrimSpace(in.Value()))
	}
	return values
}

// validateCurrentStep validates the current step's input.
func (m *WizardModel) validateCurrentStep() error {
	switch m.currentStep {
	case StepPremise:
		if strings.TrimSpace(m.premiseInput.Value()) == "" {
			return fmt.Errorf("a premise is required")
		}
	case StepSynopsis:
		if strings.TrimSpace(m.synopsisInput.Value()) == "" {
			return fmt.Errorf("a synopsis is required, write one or press ctrl+g to draft it")
		}
	case StepPlot:
		for i, in := range m.plotInputs {
			if _, err := strconv.Atoi(strings.TrimSpace(in.Value())); err != nil {
				return fmt.Errorf("%s must be a number", strings.TrimSuffix(m.plotInputs[i].Prompt, ": "))
			}
		}
		candidate := m.plot
		values := m.plotValues()
		candidate.TotalChapters = values[fieldTotal]
		candidate.ConflictChapter = values[fieldConflict]
		candidate.ClimaxChapter = values[fieldClimax]
		return candidate.Validate()
	}
	return nil
}

var stepTitles = []string{
	"Genre",
	"Writing Style",
	"Premise",
	"Synopsis",
	"Opening Scene",
	"Inciting Incident",
	"Plot Structure",
	"Ending",
}

var stepHelps = []string{
	"Choose the primary genre for your story",
	"Choose the author voice the writer imitates",
	"Describe the core premise of your story in a few sentences",
	"Outline the story in three acts",
	"Choose how the first chapter opens",
	"Choose the event that sets the story in motion",
	"Set the chapter count and where conflict and climax land (1 < conflict < climax < total)",
	"Choose how the story ends",
}

// View renders the wizard.
func (m *WizardModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var sb strings.Builder
	sb.WriteString(styles.Header.Render("NOVELCRAFT - Story Foundation"))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderProgress())
	sb.WriteString("\n\n")
	sb.WriteString(styles.Title.Render(fmt.Sprintf("Step %d: %s", m.currentStep+1, stepTitles[m.currentStep])))
	sb.WriteString("\n")
	sb.WriteString(styles.Subtitle.Render(stepHelps[m.currentStep]))
	sb.WriteString("\n\n")
	sb.WriteString(m.renderCurrentStep())
	sb.WriteString("\n")

	if m.generating {
		sb.WriteString("\n" + m.spinner.View() + " Drafting synopsis...\n")
	}
	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(styles.ErrorText.Render("Error: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(m.renderNavigationHelp())
	return sb.String()
}

// renderProgress renders the progress indicator.
func (m *WizardModel) renderProgress() string {
	parts := make([]string, 0, m.totalSteps)
	for i := 0; i < m.totalSteps; i++ {
		switch {
		case i < int(m.currentStep):
			parts = append(parts, styles.SuccessText.Render("●"))
		case i == int(m.currentStep):
			parts = append(parts, styles.InfoText.Render("●"))
		default:
			parts = append(parts, styles.MutedText.Render("○"))
		}
	}
	return strings.Join(parts, " ")
}

// renderCurrentStep renders the input for the current step.
func (m *WizardModel) renderCurrentStep() string {
	switch m.currentStep {
	case StepGenre:
		return m.genreList.View()
	case StepStyle:
		return m.styleList.View()
	case StepPremise:
		return styles.FocusedBorder.Render(m.premiseInput.View())
	case StepSynopsis:
		return styles.FocusedBorder.Render(m.synopsisInput.View())
	case StepOpening:
		return m.openingList.View()
	case StepIncident:
		return m.incidentList.View()
	case StepPlot:
		rows := make([]string, len(m.plotInputs))
		for i, in := range m.plotInputs {
			rows[i] = in.View()
		}
		return styles.FocusedBorder.Render(strings.Join(rows, "\n"))
	case StepEnding:
		return m.endingList.View()
	}
	return ""
}

// renderNavigationHelp renders the navigation help text.
func (m *WizardModel) renderNavigationHelp() string {
	parts := []string{
		fmt.Sprintf("%s confirm", styles.HelpKey.Render("Enter")),
		fmt.Sprintf("%s skip", styles.HelpKey.Render("Tab")),
	}
	if m.currentStep == StepSynopsis && m.synopsisFn != nil {
		parts = append(parts, fmt.Sprintf("%s draft", styles.HelpKey.Render("Ctrl+G")))
	}
	if m.currentStep == StepPlot {
		parts = append(parts, fmt.Sprintf("%s field", styles.HelpKey.Render("↑/↓")))
	}
	if m.currentStep > StepGenre {
		parts = append(parts, fmt.Sprintf("%s back", styles.HelpKey.Render("Backspace")))
	}
	parts = append(parts, fmt.Sprintf("%s cancel", styles.HelpKey.Render("Esc")))
	return styles.HelpDesc.Render(strings.Join(parts, "  "))
}

// Choices returns the story foundation collected so far.
func (m *WizardModel) Choices() novel.Choices {
	return m.choices.Clone()
}

// Plot returns the plot structure collected so far.
func (m *WizardModel) Plot() novel.PlotStructure {
	return m.plot
}

// Actions returns the store actions that apply the wizard's answers.
func (m *WizardModel) Actions() []store.Action {
	return []store.Action{
		store.UpdateChoice{Key: "genre", Value: m.choices.Genre},
		store.UpdateChoice{Key: "writingStyle", Value: m.choices.WritingStyle},
		store.UpdateChoice{Key: "premise", Value: m.choices.Premise},
		store.UpdateChoice{Key: "synopsis", Value: m.choices.Synopsis},
		store.UpdateChoice{Key: "opening", Value: m.choices.Opening},
		store.UpdateChoice{Key: "incident", Value: m.choices.Incident},
		store.UpdatePlotStructure{Key: "totalChapters", Value: m.plot.TotalChapters},
		store.UpdatePlotStructure{Key: "conflictChapter", Value: m.plot.ConflictChapter},
		store.UpdatePlotStructure{Key: "climaxChapter", Value: m.plot.ClimaxChapter},
		store.UpdatePlotStructure{Key: "ending", Value: m.plot.Ending},
	}
}

// Completed returns true if the wizard completed successfully.
func (m *WizardModel) Completed() bool {
	return m.completed
}

// Cancelled returns true if the wizard was cancelled.
func (m *WizardModel) Cancelled() bool {
	return m.cancelled
}

// CurrentStep returns the step being shown.
func (m *WizardModel) CurrentStep() WizardStep {
	return m.currentStep
}
