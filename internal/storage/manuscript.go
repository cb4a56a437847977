package storage

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/azyu/novelcraft/internal/novel"
)

// Manuscript output formats.
const (
	FormatMarkdown = "md"
	FormatHTML     = "html"
	FormatText     = "txt"
)

// ManuscriptOptions controls manuscript compilation.
type ManuscriptOptions struct {
	Title     string
	Format    string
	FinalOnly bool
}

// Manuscript compiles chapters of a document into a single file.
type Manuscript struct {
	md goldmark.Markdown
}

// NewManuscript creates a manuscript renderer.
func NewManuscript() *Manuscript {
	return &Manuscript{md: goldmark.New()}
}

// Render compiles doc in the requested format.
func (m *Manuscript) Render(doc novel.Document, opts ManuscriptOptions) ([]byte, error) {
	switch opts.Format {
	case FormatMarkdown, "":
		return []byte(m.markdown(doc, opts)), nil
	case FormatHTML:
		var body bytes.Buffer
		if err := m.md.Convert([]byte(m.markdown(doc, opts)), &body); err != nil {
			return nil, fmt.Errorf("failed to render html: %w", err)
		}
		var out bytes.Buffer
		out.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
		fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(opts.Title))
		out.WriteString("</head>\n<body>\n")
		out.Write(body.Bytes())
		out.WriteString("</body>\n</html>\n")
		return out.Bytes(), nil
	case FormatText:
		return []byte(m.plain(doc, opts)), nil
	}
	return nil, fmt.Errorf("unsupported manuscript format %q", opts.Format)
}

// WriteFile renders doc and writes it atomically to path.
func (m *Manuscript) WriteFile(doc novel.Document, opts ManuscriptOptions, path string) error {
	data, err := m.Render(doc, opts)
	if err != nil {
		return err
	}
	if err := AtomicWriteFile(path, data); err != nil {
		return fmt.Errorf("failed to write manuscript: %w", err)
	}
	return nil
}

// FileName returns the default manuscript file name inside dir.
func FileName(dir, title, format string) string {
	if format == "" {
		format = FormatMarkdown
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '_'
	}, strings.TrimSpace(title))
	if name == "" {
		name = "manuscript"
	}
	return filepath.Join(dir, name+"."+format)
}

func (m *Manuscript) markdown(doc novel.Document, opts ManuscriptOptions) string {
	var b strings.Builder
	if opts.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", opts.Title)
	}
	for _, ch := range chapters(doc, opts) {
		fmt.Fprintf(&b, "## %s\n\n", ch.Title)
		for _, para := range paragraphs(ch.Content) {
			b.WriteString(para)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

func (m *Manuscript) plain(doc novel.Document, opts ManuscriptOptions) string {
	var b strings.Builder
	if opts.Title != "" {
		b.WriteString(strings.ToUpper(opts.Title))
		b.WriteString("\n\n")
	}
	for _, ch := range chapters(doc, opts) {
		b.WriteString(ch.Title)
		b.WriteString("\n\n")
		for _, para := range paragraphs(ch.Content) {
			b.WriteString(para)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func chapters(doc novel.Document, opts ManuscriptOptions) []novel.Chapter {
	if !opts.FinalOnly {
		return doc.Chapters
	}
	var out []novel.Chapter
	for _, ch := range doc.Chapters {
		if ch.Status == novel.StatusFinal {
			out = append(out, ch)
		}
	}
	return out
}

func paragraphs(content string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// PlainText removes markdown markup from generated prose, keeping paragraph
// breaks. Headings, emphasis, code spans and list markers are reduced to
// their text.
func PlainText(markdown string) string {
	source := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var blocks []string
	var cur strings.Builder
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				cur.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					cur.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				cur.Write(node.Value)
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					cur.Write(seg.Value(source))
				}
				flush(&blocks, &cur)
				return ast.WalkSkipChildren, nil
			}
		case *ast.Paragraph, *ast.Heading, *ast.TextBlock:
			if !entering {
				flush(&blocks, &cur)
			}
		}
		return ast.WalkContinue, nil
	})
	flush(&blocks, &cur)

	return strings.Join(blocks, "\n\n")
}

func flush(blocks *[]string, cur *strings.Builder) {
	if s := strings.TrimSpace(cur.String()); s != "" {
		*blocks = append(*blocks, s)
	}
	cur.Reset()
}

// ReadFileLimited reads path, refusing files larger than limit bytes.
func ReadFileLimited(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), limit)
	}
	return os.ReadFile(path)
}
