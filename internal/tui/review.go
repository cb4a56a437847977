package tui

import (
	"fmt"
	"strings"

	"github.com/azyu/novelcraft/internal/tui/styles"
	"github.com/azyu/novelcraft/internal/writer"
)

// review holds proposed changes to one chapter while the author approves
// or rejects them.
type review struct {
	chapter  int
	summary  string
	changes  []writer.Change
	approved []bool
	cursor   int
}

func newReview(chapter int, imp *writer.Improvement) *review {
	changes := append([]writer.Change(nil), imp.Changes...)
	writer.SortChanges(changes)
	approved := make([]bool, len(changes))
	for i := range approved {
		approved[i] = true
	}
	return &review{
		chapter:  chapter,
		summary:  imp.Summary,
		changes:  changes,
		approved: approved,
	}
}

func (r *review) up() {
	if r.cursor > 0 {
		r.cursor--
	}
}

func (r *review) down() {
	if r.cursor < len(r.changes)-1 {
		r.cursor++
	}
}

func (r *review) toggle() {
	if len(r.changes) > 0 {
		r.approved[r.cursor] = !r.approved[r.cursor]
	}
}

// selected returns the approved changes in display order.
func (r *review) selected() []writer.Change {
	var out []writer.Change
	for i, c := range r.changes {
		if r.approved[i] {
			out = append(out, c)
		}
	}
	return out
}

func (r *review) render(width int) string {
	var sb strings.Builder
	sb.WriteString(styles.Title.Render(fmt.Sprintf("Proposed revision of chapter %d", r.chapter+1)))
	sb.WriteString("\n")
	if r.summary != "" {
		sb.WriteString(styles.Subtitle.Width(width).Render(r.summary))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")

	if len(r.changes) == 0 {
		sb.WriteString(styles.MutedText.Render("No changes were proposed."))
		return sb.String()
	}

	for i, c := range r.changes {
		mark := "[ ]"
		if r.approved[i] {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s %d. %s", mark, i+1, c.Reasoning)
		if i == r.cursor {
			sb.WriteString(styles.SelectedItem.Render(line))
		} else {
			sb.WriteString(styles.ListItem.Render(line))
		}
		sb.WriteString("\n")
		sb.WriteString(styles.Quote.Width(width - 4).Render(c.Original))
		sb.WriteString("\n")
		sb.WriteString(styles.Replacement.Width(width - 4).Render(c.Suggestion))
		sb.WriteString("\n\n")
	}

	sb.WriteString(fmt.Sprintf("%s/%s move  %s toggle  %s replace chapter  %s add as new chapter  %s discard",
		styles.HelpKey.Render("↑"), styles.HelpKey.Render("↓"),
		styles.HelpKey.Render("space"), styles.HelpKey.Render("r"),
		styles.HelpKey.Render("n"), styles.HelpKey.Render("esc")))
	return sb.String()
}
