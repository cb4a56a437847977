package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/search"
	"github.com/azyu/novelcraft/internal/store"
	"github.com/azyu/novelcraft/internal/tui/views"
)

const chapterText = "Mara climbed the stairs of the lighthouse and watched the storm gather over the bay. " +
	"Far below, the harbor bells rang out as the first boats came home."

// ============================================================================
// Writer Gate Tests
// ============================================================================

func TestGate(t *testing.T) {
	t.Run("stays locked on an incomplete foundation", func(t *testing.T) {
		var g Gate
		err := g.Unlock(novel.NewDocument())
		assert.ErrorIs(t, err, ErrWriterLocked)
		assert.Contains(t, err.Error(), "no genre")
		assert.False(t, g.Unlocked())
	})

	t.Run("refuses an invalid plot structure", func(t *testing.T) {
		var g Gate
		doc := readyDocument()
		doc.PlotStructure.ClimaxChapter = doc.PlotStructure.ConflictChapter
		err := g.Unlock(doc)
		assert.ErrorIs(t, err, novel.ErrInvalidPlotStructure)
		assert.False(t, g.Unlocked())
	})

	t.Run("unlocks and relocks", func(t *testing.T) {
		var g Gate
		require.NoError(t, g.Unlock(readyDocument()))
		assert.True(t, g.Unlocked())
		g.Lock()
		assert.False(t, g.Unlocked())
	})
}

// ============================================================================
// Model Creation Tests
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("opens the gate for a ready document", func(t *testing.T) {
		m, _ := newTestModel(t, readyDocument())
		assert.True(t, m.gate.Unlocked())
		assert.Equal(t, ViewManuscript, m.view)
		assert.Contains(t, m.View(), "writer ready")
	})

	t.Run("starts locked for a new project", func(t *testing.T) {
		m, _ := newTestModel(t, novel.NewDocument(), WithProjectName("harbor"))
		assert.False(t, m.gate.Unlocked())
		view := m.View()
		assert.Contains(t, view, "NOVELCRAFT - harbor")
		assert.Contains(t, view, "writer locked")
		assert.Contains(t, view, "This chapter is empty")
	})

	t.Run("shares the gate", func(t *testing.T) {
		g := &Gate{}
		m, _ := newTestModel(t, readyDocument(), WithGate(g))
		g.Lock()
		assert.False(t, m.gate.Unlocked())
	})

	t.Run("not ready before the first size", func(t *testing.T) {
		m := New(store.New(novel.NewDocument()))
		assert.Equal(t, "Initializing...", m.View())
	})
}

// ============================================================================
// Chapter Command Tests
// ============================================================================

func TestChapterCommands(t *testing.T) {
	t.Run("add moves to the new chapter", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/add The Harbor")

		doc := s.Document()
		require.Len(t, doc.Chapters, 2)
		assert.Equal(t, "The Harbor", doc.Chapters[1].Title)
		assert.Equal(t, 1, doc.CurrentChapterIndex)
		assert.Contains(t, m.View(), "Chapter 2 of 2: The Harbor")
	})

	t.Run("add without a title numbers the chapter", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		runCommand(m, "/add")
		assert.Equal(t, "Chapter 2", s.Document().Chapters[1].Title)
	})

	t.Run("goto", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/add")
		m, _ = runCommand(m, "/goto 1")
		assert.Equal(t, 0, s.Document().CurrentChapterIndex)

		m, _ = runCommand(m, "/goto 9")
		assert.EqualError(t, m.err, "chapter must be between 1 and 2")
	})

	t.Run("delete keeps the only chapter", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/delete")
		assert.Error(t, m.err)
		assert.Len(t, s.Document().Chapters, 1)
	})

	t.Run("delete the current chapter", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/add Second")
		runCommand(m, "/delete")
		doc := s.Document()
		require.Len(t, doc.Chapters, 1)
		assert.Equal(t, 0, doc.CurrentChapterIndex)
	})

	t.Run("toggle and plot point", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/toggle")
		m, _ = runCommand(m, "/plot rising action")
		ch := s.Document().Chapters[0]
		assert.Equal(t, novel.StatusFinal, ch.Status)
		assert.Equal(t, novel.PlotPointRisingAction, ch.PlotPoint)

		m, _ = runCommand(m, "/plot denouement")
		assert.Error(t, m.err)
	})

	t.Run("chapter keys", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/add")
		m, _ = sendKeyMsg(m, tea.KeyCtrlP)
		assert.Equal(t, 0, s.Document().CurrentChapterIndex)
		m, _ = sendKeyMsg(m, tea.KeyCtrlP)
		assert.Equal(t, 0, s.Document().CurrentChapterIndex, "clamped")
		sendKeyMsg(m, tea.KeyCtrlN)
		assert.Equal(t, 1, s.Document().CurrentChapterIndex)
	})

	t.Run("chapters pane", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/add Second")
		m, _ = runCommand(m, "/chapters")
		assert.Equal(t, ViewChapters, m.view)
		assert.Contains(t, m.View(), "2. Second")

		m, _ = sendKeyMsg(m, tea.KeyUp)
		m, _ = sendKeyMsg(m, tea.KeyEnter)
		assert.Equal(t, ViewManuscript, m.view)
		assert.Equal(t, 0, s.Document().CurrentChapterIndex)
	})

	t.Run("unknown command", func(t *testing.T) {
		m, _ := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/dance")
		assert.EqualError(t, m.err, "unknown command: /dance")

		m, _ = runCommand(m, "hello")
		assert.Error(t, m.err)
	})
}

// ============================================================================
// Editor Tests
// ============================================================================

func TestEditor(t *testing.T) {
	t.Run("save replaces the chapter text", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = sendKeyMsg(m, tea.KeyCtrlE)
		assert.Equal(t, ViewEditor, m.view)

		m = sendRunesMsg(m, "Once upon a tide.")
		m, _ = sendKeyMsg(m, tea.KeyCtrlS)

		assert.Equal(t, ViewManuscript, m.view)
		assert.Equal(t, "Once upon a tide.", s.Document().Chapters[0].Content)
		assert.True(t, m.notice.Visible)
	})

	t.Run("escape discards", func(t *testing.T) {
		m, s := newTestModel(t, novel.NewDocument())
		m, _ = sendKeyMsg(m, tea.KeyCtrlE)
		m = sendRunesMsg(m, "draft")
		sendKeyMsg(m, tea.KeyEsc)
		assert.Empty(t, s.Document().Chapters[0].Content)
	})
}

// ============================================================================
// Generation Tests
// ============================================================================

func TestGeneration_Locked(t *testing.T) {
	gen := &fakeGenerator{}
	m, _ := newTestModel(t, novel.NewDocument(), WithWriter(writerFor(gen)))

	for _, cmd := range []string{"/first", "/next", "/title", "/improve", "/extract"} {
		m, _ = runCommand(m, cmd)
		assert.ErrorIs(t, m.err, ErrWriterLocked, cmd)
		assert.Nil(t, m.task)
		m.err = nil
	}
	assert.Empty(t, gen.prompts)
}

func TestGeneration_FirstChapter(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"first chapter": chapterText}}
	m, s := newTestModel(t, readyDocument(), WithWriter(writerFor(gen)))

	m, cmd := runCommand(m, "/first mara")
	require.NotNil(t, cmd)
	require.NotNil(t, m.task)
	assert.Contains(t, m.View(), "Writing chapter 1")

	m = finishTask(t, m)
	assert.Nil(t, m.task)
	ch := s.Document().Chapters[0]
	assert.Equal(t, chapterText, ch.Content)
	assert.Equal(t, novel.IDLinks(7), ch.CharactersInChapter)
	assert.Equal(t, "Chapter 1 written", m.notice.Message)

	t.Run("unknown character", func(t *testing.T) {
		m, _ = runCommand(m, "/first Nobody")
		assert.EqualError(t, m.err, `no character named "Nobody"`)
	})
}

func TestGeneration_NextChapter(t *testing.T) {
	gen := &fakeGenerator{
		replies: map[string]string{
			"continuing a":               chapterText,
			"naming a chapter":           "The Harbor Bells",
			"chapter-by-chapter outline": "Mara hears the bells.",
		},
		structured: `{"mentionedExistingCharacterNames":["Mara"],"mentionedExistingLocationNames":[],"mentionedExistingObjectNames":[],` +
			`"newCharacters":[],"newLocations":[{"name":"Harbor","description":"A busy port below the lighthouse."}],"newObjects":[]}`,
	}
	doc := readyDocument()
	doc.Chapters[0].Content = chapterText
	m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))

	m, _ = runCommand(m, "/next conflict")
	m = finishTask(t, m)
	require.NoError(t, m.err)

	got := s.Document()
	require.Len(t, got.Chapters, 2)
	assert.Equal(t, 1, got.CurrentChapterIndex)
	assert.Equal(t, "The Harbor Bells", got.Chapters[1].Title)
	assert.Equal(t, "Mara hears the bells.", got.Chapters[1].Summary)
	require.Len(t, got.Locations, 1)
	assert.Equal(t, "Harbor", got.Locations[0].Name)
	assert.Contains(t, m.notice.Message, "Chapter 2 written: The Harbor Bells")
	assert.Contains(t, m.View(), "Chapter 2 of 2: The Harbor Bells")
}

func TestGeneration_Failure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exhausted")}
	doc := readyDocument()
	doc.Chapters[0].Content = chapterText
	m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))

	m, _ = runCommand(m, "/title")
	m = finishTask(t, m)

	assert.ErrorContains(t, m.err, "quota exhausted")
	assert.Equal(t, NoticeError, m.notice.Level)
	assert.Equal(t, novel.DefaultChapterTitle, s.Document().Chapters[0].Title)
}

func TestGeneration_Cancel(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"naming a chapter": "Too Late"}}
	doc := readyDocument()
	doc.Chapters[0].Content = chapterText
	m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))

	m, _ = runCommand(m, "/title")
	require.NotNil(t, m.task)
	pending := m.task

	m, _ = sendKeyMsg(m, tea.KeyEsc)
	assert.Nil(t, m.task)
	assert.Error(t, pending.ctx.Err(), "the context is cancelled")

	m.Update(pending.exec())
	assert.Equal(t, novel.DefaultChapterTitle, s.Document().Chapters[0].Title, "late results are dropped")
}

func TestGeneration_Busy(t *testing.T) {
	gen := &fakeGenerator{replies: map[string]string{"naming a chapter": "One"}}
	doc := readyDocument()
	doc.Chapters[0].Content = chapterText
	m, _ := newTestModel(t, doc, WithWriter(writerFor(gen)))

	m, _ = runCommand(m, "/title")
	m, cmd := runCommand(m, "/summary")
	assert.Nil(t, cmd)
	assert.ErrorIs(t, m.err, errBusy)
}

func TestGeneration_DocumentFrozenWhileRunning(t *testing.T) {
	setup := func(t *testing.T) (*Model, *store.Store) {
		gen := &fakeGenerator{replies: map[string]string{"naming a chapter": "Title For B"}}
		doc := readyDocument()
		doc.Chapters = []novel.Chapter{novel.NewChapter("A"), novel.NewChapter("B"), novel.NewChapter("C")}
		for i := range doc.Chapters {
			doc.Chapters[i].Content = chapterText
		}
		doc.CurrentChapterIndex = 1
		m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))
		m, _ = runCommand(m, "/title")
		require.NotNil(t, m.task)
		return m, s
	}

	t.Run("chapter commands are refused", func(t *testing.T) {
		m, s := setup(t)
		for _, line := range []string{"/goto 1", "/delete", "/add Extra", "/toggle", "/plot climax", "/edit", "/wizard"} {
			m, _ = runCommand(m, line)
			assert.ErrorIs(t, m.err, errBusy, line)
			m.err = nil
		}
		m, _ = sendKeyMsg(m, tea.KeyCtrlP)
		assert.ErrorIs(t, m.err, errBusy)

		m = finishTask(t, m)
		doc := s.Document()
		require.Len(t, doc.Chapters, 3)
		assert.Equal(t, 1, doc.CurrentChapterIndex)
		assert.Equal(t, "A", doc.Chapters[0].Title)
		assert.Equal(t, "Title For B", doc.Chapters[1].Title)
		assert.Equal(t, "C", doc.Chapters[2].Title)
	})

	t.Run("result is discarded when the document changed", func(t *testing.T) {
		m, s := setup(t)
		s.Dispatch(store.DeleteChapter{Index: 0})

		m = finishTask(t, m)
		assert.ErrorIs(t, m.err, errStale)
		doc := s.Document()
		require.Len(t, doc.Chapters, 2)
		assert.Equal(t, "B", doc.Chapters[0].Title)
		assert.Equal(t, "C", doc.Chapters[1].Title)
	})
}

func TestGeneration_NoWriter(t *testing.T) {
	m, _ := newTestModel(t, readyDocument())
	m, _ = runCommand(m, "/next")
	assert.ErrorIs(t, m.err, errNoWriter)
}

// ============================================================================
// Review Tests
// ============================================================================

const improvementJSON = `{"summaryOfChanges":"Tighter prose.","detailedChanges":[` +
	`{"original":"climbed the stairs","suggestion":"raced up the stairs","reasoning":"Stronger verb."},` +
	`{"original":"came home","suggestion":"limped home","reasoning":"Shows the storm's toll."}]}`

func TestReview(t *testing.T) {
	setup := func(t *testing.T) (*Model, *store.Store, *fakeGenerator) {
		gen := &fakeGenerator{
			replies:    map[string]string{"applying approved revisions": "Mara raced up the stairs of the lighthouse."},
			structured: improvementJSON,
		}
		doc := readyDocument()
		doc.Chapters[0].Content = chapterText
		m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))

		m, _ = runCommand(m, "/improve style")
		m = finishTask(t, m)
		require.Equal(t, ViewReview, m.view)
		require.Len(t, m.review.changes, 2)
		return m, s, gen
	}

	t.Run("renders proposed changes", func(t *testing.T) {
		m, _, _ := setup(t)
		view := m.View()
		assert.Contains(t, view, "Proposed revision of chapter 1")
		assert.Contains(t, view, "Tighter prose.")
		assert.Contains(t, view, "[x]")
	})

	t.Run("replace applies approved changes only", func(t *testing.T) {
		m, s, gen := setup(t)
		m.review.cursor = 1
		m, _ = sendKeyMsg(m, tea.KeySpace)
		assert.Len(t, m.review.selected(), 1)

		m = sendRunesMsg(m, "r")
		m = finishTask(t, m)

		assert.Equal(t, "Mara raced up the stairs of the lighthouse.", s.Document().Chapters[0].Content)
		assert.Equal(t, ViewManuscript, m.view)

		var fixPrompt string
		for _, p := range gen.prompts {
			if strings.Contains(p, "applying approved revisions") {
				fixPrompt = p
			}
		}
		require.NotEmpty(t, fixPrompt)
		assert.Equal(t, 1, strings.Count(fixPrompt, "Replace:"))
	})

	t.Run("new chapter keeps the original", func(t *testing.T) {
		m, s, _ := setup(t)
		m = sendRunesMsg(m, "n")
		finishTask(t, m)

		doc := s.Document()
		require.Len(t, doc.Chapters, 2)
		assert.Equal(t, chapterText, doc.Chapters[0].Content)
		assert.Equal(t, "Chapter 2 (Revised)", doc.Chapters[1].Title)
	})

	t.Run("nothing approved", func(t *testing.T) {
		m, _, _ := setup(t)
		m, _ = sendKeyMsg(m, tea.KeySpace)
		m, _ = sendKeyMsg(m, tea.KeyDown)
		m, _ = sendKeyMsg(m, tea.KeySpace)
		m = sendRunesMsg(m, "r")
		assert.Nil(t, m.task)
		assert.EqualError(t, m.err, "no changes approved")
	})

	t.Run("escape discards", func(t *testing.T) {
		m, _, _ := setup(t)
		m, _ = sendKeyMsg(m, tea.KeyEsc)
		assert.Nil(t, m.review)
		assert.Equal(t, ViewManuscript, m.view)
	})
}

func TestAnalyzeAndFix(t *testing.T) {
	gen := &fakeGenerator{
		structured: `{"issues":[{"quote":"watched the storm gather","issue":"Flat verb.","suggestion":"saw the storm coil"}]}`,
	}
	doc := readyDocument()
	doc.Chapters[0].Content = chapterText
	m, s := newTestModel(t, doc, WithWriter(writerFor(gen)))

	m, _ = runCommand(m, "/analyze")
	m = finishTask(t, m)
	require.Equal(t, ViewReport, m.view)
	assert.Contains(t, m.report, "1 issues")

	m, _ = runCommand(m, "/fix")
	assert.Contains(t, s.Document().Chapters[0].Content, "saw the storm coil")
	assert.Equal(t, "1 suggestions applied", m.notice.Message)

	m, _ = runCommand(m, "/fix")
	assert.EqualError(t, m.err, "run /analyze first")
}

// ============================================================================
// Wizard Tests
// ============================================================================

func TestWizardFlow(t *testing.T) {
	doc := readyDocument()
	doc.Choices.Premise = ""
	m, s := newTestModel(t, doc)
	require.False(t, m.gate.Unlocked())

	m, _ = runCommand(m, "/wizard")
	require.Equal(t, ViewWizard, m.view)
	assert.Contains(t, m.View(), "Story Foundation")

	// Skip to the premise, fill it in, then skip the rest.
	m, _ = sendKeyMsg(m, tea.KeyTab)
	m, _ = sendKeyMsg(m, tea.KeyTab)
	m = sendRunesMsg(m, "A keeper finds a door in the sea.")
	m, _ = sendKeyMsg(m, tea.KeyEnter)
	var cmd tea.Cmd
	for m.wizard.CurrentStep() != views.StepEnding {
		m, _ = sendKeyMsg(m, tea.KeyTab)
	}
	m, cmd = sendKeyMsg(m, tea.KeyTab)
	require.NotNil(t, cmd)

	model, _ := m.Update(cmd())
	m = model.(*Model)

	assert.Equal(t, ViewManuscript, m.view)
	assert.Equal(t, "A keeper finds a door in the sea.", s.Document().Choices.Premise)
	assert.True(t, m.gate.Unlocked())
}

func TestWizardCancel(t *testing.T) {
	m, s := newTestModel(t, novel.NewDocument())
	m, _ = runCommand(m, "/wizard")
	m, cmd := sendKeyMsg(m, tea.KeyEsc)
	require.NotNil(t, cmd)
	model, _ := m.Update(cmd())
	m = model.(*Model)

	assert.Equal(t, ViewManuscript, m.view)
	assert.Nil(t, m.wizard)
	assert.Equal(t, novel.DefaultChoices(), s.Document().Choices)
}

// ============================================================================
// Project Command Tests
// ============================================================================

func TestStartAndStatus(t *testing.T) {
	g := &Gate{}
	m, _ := newTestModel(t, readyDocument(), WithGate(g))
	g.Lock()

	m, _ = runCommand(m, "/status")
	assert.Equal(t, ViewReport, m.view)
	assert.Contains(t, m.report, "Run /start")

	m, _ = runCommand(m, "/start")
	require.NoError(t, m.err)
	assert.True(t, g.Unlocked())

	t.Run("reports broken links", func(t *testing.T) {
		doc := novel.NewDocument()
		doc.Chapters[0].CharactersInChapter = novel.IDLinks(99)
		m, _ := newTestModel(t, doc)
		m, _ = runCommand(m, "/status")
		assert.Contains(t, m.report, "Broken links")
		assert.Contains(t, m.report, "no genre")
	})
}

func TestSearch(t *testing.T) {
	t.Run("renders results", func(t *testing.T) {
		var query string
		fn := func(q string) ([]search.SearchResult, error) {
			query = q
			return []search.SearchResult{{
				Entry:   search.Entry{SourceType: search.SourceTypeChapter, ChapterIndex: 0, Title: "Chapter 1"},
				Snippet: "the [harbor] bells",
			}}, nil
		}
		m, _ := newTestModel(t, novel.NewDocument(), WithSearch(fn))
		m, _ = runCommand(m, "/search harbor bells")

		assert.Equal(t, "harbor bells", query)
		assert.Equal(t, ViewReport, m.view)
		assert.Contains(t, m.report, "chapter 1: Chapter 1")
		assert.Contains(t, m.report, "the [harbor] bells")
	})

	t.Run("unavailable", func(t *testing.T) {
		m, _ := newTestModel(t, novel.NewDocument())
		m, _ = runCommand(m, "/search harbor")
		assert.ErrorIs(t, m.err, errNoSearch)
	})
}

// ============================================================================
// Notice Tests
// ============================================================================

func TestNotice(t *testing.T) {
	var n Notice
	cmd := n.show("Saved", NoticeSuccess)
	require.NotNil(t, cmd)
	assert.Contains(t, n.View(40), "✓ Saved")

	stale := clearNoticeMsg{seq: n.seq}
	n.show("Again", NoticeWarning)
	n.clear(stale)
	assert.True(t, n.Visible, "a stale clear keeps the newer notice")

	n.clear(clearNoticeMsg{seq: n.seq})
	assert.False(t, n.Visible)
	assert.Empty(t, n.View(40))
}

func TestOverlayTopRight(t *testing.T) {
	bg := strings.Repeat(strings.Repeat(".", 20)+"\n", 3) + strings.Repeat(".", 20)
	out := overlayTopRight("XX", bg, 1)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Repeat(".", 20), lines[0])
	assert.Equal(t, strings.Repeat(".", 17)+"XX.", lines[1])

	assert.Equal(t, bg, overlayTopRight("", bg, 1))
}
