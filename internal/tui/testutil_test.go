package tui

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/llm"
	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/writer"
)

func init() {
	// Disable colors for consistent test output across environments
	lipgloss.SetColorProfile(termenv.Ascii)
}

// testConfig holds common test configuration values.
var testConfig = struct {
	Width  int
	Height int
}{
	Width:  100,
	Height: 30,
}

// fakeGenerator answers text prompts by the first matching key and every
// structured prompt with the same JSON.
type fakeGenerator struct {
	mu         sync.Mutex
	replies    map[string]string
	structured string
	err        error
	prompts    []string
}

func (g *fakeGenerator) GenerateText(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	for needle, reply := range g.replies {
		if strings.Contains(prompt, needle) {
			return reply, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func (g *fakeGenerator) GenerateStructured(_ context.Context, prompt string, _ llm.Schema, _ *llm.Image) (json.RawMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return nil, g.err
	}
	return json.RawMessage(g.structured), nil
}

func writerFor(gen llm.Generator) WriterSource {
	w := writer.New(gen)
	return func(context.Context) (*writer.Writer, error) { return w, nil }
}

// readyDocument returns a document whose foundation is complete.
func readyDocument() novel.Document {
	doc := novel.NewDocument()
	doc.Choices.Genre = novel.Ptr("Fantasy")
	doc.Choices.Premise = "A lighthouse keeper finds a map in a bottle."
	doc.Choices.Synopsis = "Act 1 (Setup): Mara leaves the island."
	doc.Choices.Opening = novel.Ptr("A storm batters the lighthouse.")
	doc.Choices.Incident = novel.Ptr("The bottle washes ashore.")
	doc.Characters = []novel.Character{{ID: 7, Name: "Mara", Role: "protagonist"}}
	return doc
}

// newTestModel creates a sized model over doc.
func newTestModel(t *testing.T, doc novel.Document, opts ...Option) (*Model, *store.Store) {
	t.Helper()
	s := store.New(doc)
	m := New(s, opts...)
	m = sendWindowSize(m, testConfig.Width, testConfig.Height)
	return m, s
}

// sendKeyMsg sends a key message to the model and returns the updated model.
func sendKeyMsg(m *Model, keyType tea.KeyType) (*Model, tea.Cmd) {
	model, cmd := m.Update(tea.KeyMsg{Type: keyType})
	return model.(*Model), cmd
}

// sendRunesMsg sends runes (typed text) to the model and returns the updated model.
func sendRunesMsg(m *Model, s string) *Model {
	for _, r := range s {
		model, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = model.(*Model)
	}
	return m
}

// sendWindowSize sends a window size message to the model.
func sendWindowSize(m *Model, width, height int) *Model {
	model, _ := m.Update(tea.WindowSizeMsg{Width: width, Height: height})
	return model.(*Model)
}

// runCommand types a command line and submits it.
func runCommand(m *Model, line string) (*Model, tea.Cmd) {
	m = sendRunesMsg(m, line)
	return sendKeyMsg(m, tea.KeyEnter)
}

// finishTask runs the pending task to completion and delivers its result.
func finishTask(t *testing.T, m *Model) *Model {
	t.Helper()
	require.NotNil(t, m.task, "no task is running")
	msg := m.task.exec()
	model, _ := m.Update(msg)
	return model.(*Model)
}
