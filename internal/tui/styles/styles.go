// Package styles provides Lip Gloss styling for the TUI.
package styles

import "github.com/charmbracelet/lipgloss"

var (
	// Palette: ink on paper.
	Primary     = lipgloss.Color("#5B8DEF")
	Secondary   = lipgloss.Color("#7FB77E")
	Accent      = lipgloss.Color("#E0A458")
	Error       = lipgloss.Color("#D1495B")
	Info        = lipgloss.Color("#66C7F4")
	Surface     = lipgloss.Color("#3A3F4B")
	TextPrimary = lipgloss.Color("#EDE6D6")
	TextMuted   = lipgloss.Color("#A39E93")

	Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		Padding(0, 1)

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextPrimary)

	Subtitle = lipgloss.NewStyle().
			Foreground(TextMuted).
			Italic(true)

	// Manuscript
	ChapterHeading = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true).
			Border(lipgloss.NormalBorder(), false, false, true, false).
			BorderForeground(Secondary).
			MarginBottom(1)

	Prose = lipgloss.NewStyle().
		Foreground(TextPrimary)

	DraftBadge = lipgloss.NewStyle().
			Foreground(Accent).
			Bold(true)

	FinalBadge = lipgloss.NewStyle().
			Foreground(Secondary).
			Bold(true)

	LockedBadge = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	UnlockedBadge = lipgloss.NewStyle().
			Foreground(Secondary)

	// Input area
	InputPrompt = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	InputText = lipgloss.NewStyle().
			Foreground(TextPrimary)

	StatusBar = lipgloss.NewStyle().
			Background(Surface).
			Foreground(TextMuted).
			Padding(0, 1)

	ErrorText = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	InfoText = lipgloss.NewStyle().
			Foreground(Accent)

	SuccessText = lipgloss.NewStyle().
			Foreground(Secondary)

	MutedText = lipgloss.NewStyle().
			Foreground(TextMuted)

	// Help
	HelpKey = lipgloss.NewStyle().
		Foreground(Primary).
		Bold(true)

	HelpDesc = lipgloss.NewStyle().
			Foreground(TextMuted)

	FocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary)

	// List items
	ListItem = lipgloss.NewStyle().
			PaddingLeft(2)

	SelectedItem = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			PaddingLeft(2)

	Spinner = lipgloss.NewStyle().
		Foreground(Primary)

	// Review pane: the quoted original and its replacement.
	Quote = lipgloss.NewStyle().
		Foreground(TextMuted).
		Italic(true).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(Surface).
		PaddingLeft(1)

	Replacement = lipgloss.NewStyle().
			Foreground(Secondary).
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(Secondary).
			PaddingLeft(1)
)

// Width returns the available width for content.
func Width(termWidth int) int {
	return termWidth - 4 // Account for padding
}

// Status renders a chapter status badge.
func Status(final bool) string {
	if final {
		return FinalBadge.Render("final")
	}
	return DraftBadge.Render("draft")
}
