package writer

import (
	"fmt"
	"strings"

	"github.com/azyu/novelcraft/internal/novel"
)

// prompt assembles a prompt from a lead paragraph and titled sections.
type prompt struct {
	sb strings.Builder
}

func newPrompt(lead string) *prompt {
	p := &prompt{}
	p.sb.WriteString(strings.TrimSpace(lead))
	p.sb.WriteString("\n")
	return p
}

// section adds a titled block. Empty bodies are skipped.
func (p *prompt) section(title, body string) *prompt {
	body = strings.TrimSpace(body)
	if body == "" {
		return p
	}
	fmt.Fprintf(&p.sb, "\n## %s\n%s\n", title, body)
	return p
}

// quoted adds a titled block whose body is fenced in triple quotes.
func (p *prompt) quoted(title, body string) *prompt {
	if strings.TrimSpace(body) == "" {
		return p
	}
	fmt.Fprintf(&p.sb, "\n## %s\n\"\"\"\n%s\n\"\"\"\n", title, strings.TrimSpace(body))
	return p
}

// bullets adds a titled list.
func (p *prompt) bullets(title string, items ...string) *prompt {
	var lines []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			lines = append(lines, "- "+item)
		}
	}
	return p.section(title, strings.Join(lines, "\n"))
}

func (p *prompt) line(s string) *prompt {
	p.sb.WriteString("\n")
	p.sb.WriteString(s)
	p.sb.WriteString("\n")
	return p
}

func (p *prompt) String() string {
	return p.sb.String()
}

const proseFormatRule = "Do not use markdown of any kind (no #, * or _). Never use asterisks for emphasis and never start a paragraph or a line of dialogue with a dash. " +
	"Use standard novel formatting: every new speaker starts a new paragraph."

// describeCharacter renders a cast entry for a prompt.
func describeCharacter(c novel.Character) string {
	var details []string
	details = append(details, orDefault(roleLabel(c.Role), "role not set"))
	if c.Gender != "" {
		details = append(details, c.Gender)
	}
	if c.Age != "" {
		details = append(details, "age "+c.Age)
	}
	line := fmt.Sprintf("%s (%s)", c.Name, strings.Join(details, ", "))

	var looks []string
	for _, s := range []string{c.FaceDescription, c.HairDescription, c.BodyShape} {
		if s = strings.TrimSpace(s); s != "" {
			looks = append(looks, s)
		}
	}
	if c.ClothingDescription != "" {
		looks = append(looks, "wears "+c.ClothingDescription)
	}
	if len(looks) > 0 {
		line += ": " + strings.Join(looks, "; ")
	}
	return line
}

func roleLabel(role string) string {
	if role == novel.RoleUnset {
		return ""
	}
	return role
}

// blueprint renders the plot structure.
func blueprint(p novel.PlotStructure, chapterNumber int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The novel has %d chapters. The main conflict starts in chapter %d and the climax comes in chapter %d.",
		p.TotalChapters, p.ConflictChapter, p.ClimaxChapter)
	if ending := endingOf(p); ending != "" {
		fmt.Fprintf(&sb, " The story is headed for this ending: %s.", ending)
	}
	if chapterNumber > 0 {
		fmt.Fprintf(&sb, " You are writing chapter %d; place it correctly in this structure", chapterNumber)
		switch {
		case chapterNumber < p.ConflictChapter:
			sb.WriteString(" (still building toward the main conflict).")
		case chapterNumber < p.ClimaxChapter:
			sb.WriteString(" (the conflict is escalating toward the climax).")
		case chapterNumber == p.ClimaxChapter:
			sb.WriteString(" (this is the climax).")
		default:
			sb.WriteString(" (after the climax, moving toward resolution).")
		}
	}
	return sb.String()
}

func endingOf(p novel.PlotStructure) string {
	if strings.TrimSpace(p.CustomEnding) != "" {
		return p.CustomEnding
	}
	return novel.Deref(p.Ending)
}
