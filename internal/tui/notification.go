package tui

import (
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/azyu/novelcraft/internal/tui/styles"
)

// NoticeLevel ranks a notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeSuccess
	NoticeWarning
	NoticeError
)

// noticeDuration is how long a notice stays on screen.
const noticeDuration = 4 * time.Second

// Notice is a short message shown in the top right corner.
type Notice struct {
	Message string
	Level   NoticeLevel
	Visible bool

	// seq ties a clear message to the notice it was scheduled for.
	seq int
}

type clearNoticeMsg struct{ seq int }

var noticeBase = lipgloss.NewStyle().
	Padding(0, 1).
	BorderStyle(lipgloss.RoundedBorder())

func (n Notice) style() lipgloss.Style {
	var c lipgloss.Color
	switch n.Level {
	case NoticeSuccess:
		c = styles.Secondary
	case NoticeWarning:
		c = styles.Accent
	case NoticeError:
		c = styles.Error
	default:
		c = styles.Info
	}
	return noticeBase.BorderForeground(c).Foreground(c)
}

func (n Notice) icon() string {
	switch n.Level {
	case NoticeSuccess:
		return "✓"
	case NoticeWarning:
		return "!"
	case NoticeError:
		return "✗"
	default:
		return "i"
	}
}

// show replaces the notice and schedules its removal.
func (n *Notice) show(msg string, level NoticeLevel) tea.Cmd {
	n.seq++
	n.Message = msg
	n.Level = level
	n.Visible = true
	seq := n.seq
	return tea.Tick(noticeDuration, func(time.Time) tea.Msg {
		return clearNoticeMsg{seq: seq}
	})
}

// clear hides the notice unless a newer one replaced it.
func (n *Notice) clear(msg clearNoticeMsg) {
	if msg.seq == n.seq {
		n.Visible = false
		n.Message = ""
	}
}

// View renders the notice within maxWidth columns.
func (n Notice) View(maxWidth int) string {
	if !n.Visible || n.Message == "" {
		return ""
	}
	msg := n.Message
	if maxWidth > 12 {
		msg = truncate.StringWithTail(msg, uint(maxWidth-10), "...")
	}
	return n.style().Render(n.icon() + " " + msg)
}

func splitLines(s string) (lines []string, widest int) {
	lines = strings.Split(s, "\n")
	for _, l := range lines {
		if w := ansi.PrintableRuneWidth(l); w > widest {
			widest = w
		}
	}
	return lines, widest
}

// overlay draws fg over bg with its top left corner at column x, row y.
func overlay(x, y int, fg, bg string) string {
	fgLines, fgWidth := splitLines(fg)
	bgLines, bgWidth := splitLines(bg)
	if fgWidth >= bgWidth && len(fgLines) >= len(bgLines) {
		return fg
	}

	x = max(0, min(x, bgWidth-fgWidth))
	y = max(0, min(y, len(bgLines)-len(fgLines)))

	var b strings.Builder
	for i, bgLine := range bgLines {
		if i > 0 {
			b.WriteByte('\n')
		}
		if i < y || i >= y+len(fgLines) {
			b.WriteString(bgLine)
			continue
		}

		pos := 0
		if x > 0 {
			left := truncate.String(bgLine, uint(x))
			pos = ansi.PrintableRuneWidth(left)
			b.WriteString(left)
			if pos < x {
				b.WriteString(strings.Repeat(" ", x-pos))
				pos = x
			}
		}

		fgLine := fgLines[i-y]
		b.WriteString(fgLine)
		pos += ansi.PrintableRuneWidth(fgLine)

		if pos < ansi.PrintableRuneWidth(bgLine) {
			b.WriteString(skipColumns(bgLine, pos))
		}
	}
	return b.String()
}

// skipColumns drops the first n printable columns of s.
func skipColumns(s string, n int) string {
	width := 0
	for i, r := range s {
		if width >= n {
			return s[i:]
		}
		width += ansi.PrintableRuneWidth(string(r))
	}
	return ""
}

// overlayTopRight places the notice in the top right corner of background.
func overlayTopRight(notice, background string, padding int) string {
	if notice == "" {
		return background
	}
	x := lipgloss.Width(background) - lipgloss.Width(notice) - padding
	return overlay(x, padding, notice, background)
}
