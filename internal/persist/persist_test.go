package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/schema"
	"github.com/azyu/novelcraft/internal/storage"
	"github.com/azyu/novelcraft/internal/store"
)

// failingKV rejects every operation.
type failingKV struct{}

var errDisk = errors.New("disk unavailable")

func (failingKV) Get(string) (string, bool, error) { return "", false, errDisk }
func (failingKV) Set(string, string) error          { return errDisk }
func (failingKV) Delete(string) error               { return errDisk }
func (failingKV) Close() error                      { return nil }

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func storedDocument(t *testing.T, kv storage.KV) novel.Document {
	t.Helper()
	value, ok, err := kv.Get(DocumentKey)
	require.NoError(t, err)
	require.True(t, ok, "document key should be written")
	return decodeDocument(t, []byte(value))
}

func decodeDocument(t *testing.T, data []byte) novel.Document {
	t.Helper()
	raw, err := schema.Parse(data)
	require.NoError(t, err)
	return schema.Normalize(raw)
}

// ============================================================================
// Mirror
// ============================================================================

func TestAttach(t *testing.T) {
	t.Run("writes the document after every change", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		s := store.New(novel.NewDocument())
		p := New(kv)
		detach := p.Attach(s)
		defer detach()

		s.Dispatch(store.AddCharacter{Character: novel.Character{ID: 7, Name: "Mara", Role: "Protagonist"}})
		doc := storedDocument(t, kv)
		require.Len(t, doc.Characters, 1)
		assert.Equal(t, "Mara", doc.Characters[0].Name)

		s.Dispatch(store.DeleteCharacter{Index: 0})
		assert.Empty(t, storedDocument(t, kv).Characters)
	})

	t.Run("ignored actions do not write", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		s := store.New(novel.NewDocument())
		detach := New(kv).Attach(s)
		defer detach()

		s.Dispatch(store.DeleteChapter{Index: 0})
		_, ok, err := kv.Get(DocumentKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("detach stops mirroring", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		s := store.New(novel.NewDocument())
		detach := New(kv).Attach(s)
		detach()

		s.Dispatch(store.SetCurrentChapterContent{Content: "after detach"})
		_, ok, err := kv.Get(DocumentKey)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("quota failure degrades to session only", func(t *testing.T) {
		var logs bytes.Buffer
		kv := storage.NewMemoryKV(64)
		s := store.New(novel.NewDocument())
		detach := New(kv, WithLogger(quietLogger(&logs))).Attach(s)
		defer detach()

		s.Dispatch(store.SetCurrentChapterContent{Content: "It was a long night at the harbor."})

		cur, ok := s.Document().CurrentChapter()
		require.True(t, ok)
		assert.Equal(t, "It was a long night at the harbor.", cur.Content)
		_, stored, err := kv.Get(DocumentKey)
		require.NoError(t, err)
		assert.False(t, stored)
		assert.Contains(t, logs.String(), "session only")
	})

	t.Run("storage errors never reach the store", func(t *testing.T) {
		var logs bytes.Buffer
		s := store.New(novel.NewDocument())
		detach := New(failingKV{}, WithLogger(quietLogger(&logs))).Attach(s)
		defer detach()

		s.Dispatch(store.AddChapter{Chapter: novel.NewChapter("Chapter 2")})
		assert.Len(t, s.Document().Chapters, 2)
		assert.Contains(t, logs.String(), errDisk.Error())
	})
}

// ============================================================================
// Load
// ============================================================================

func TestLoad(t *testing.T) {
	t.Run("missing key keeps defaults", func(t *testing.T) {
		s := store.New(novel.NewDocument())
		New(storage.NewMemoryKV(0)).Load(s)

		assert.Equal(t, uint64(0), s.Version())
		assert.Len(t, s.Document().Chapters, 1)
	})

	t.Run("corrupt value keeps defaults", func(t *testing.T) {
		var logs bytes.Buffer
		kv := storage.NewMemoryKV(0)
		require.NoError(t, kv.Set(DocumentKey, "{not json"))
		s := store.New(novel.NewDocument())

		New(kv, WithLogger(quietLogger(&logs))).Load(s)
		assert.Equal(t, uint64(0), s.Version())
		assert.Contains(t, logs.String(), "corrupt")
	})

	t.Run("read failure keeps defaults", func(t *testing.T) {
		var logs bytes.Buffer
		s := store.New(novel.NewDocument())
		New(failingKV{}, WithLogger(quietLogger(&logs))).Load(s)
		assert.Equal(t, uint64(0), s.Version())
	})

	t.Run("restores and migrates a stored document", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		legacy := `{
			"characters": [{"id": 3, "name": "Ivo"}],
			"locations": [{"id": 4, "name": "Forest", "description": ""}],
			"chapters": [{"title": "One", "content": "text", "locationInChapter": "Forest"}],
			"currentChapterIndex": 0
		}`
		require.NoError(t, kv.Set(DocumentKey, legacy))
		s := store.New(novel.NewDocument())

		New(kv).Load(s)
		doc := s.Document()
		require.Len(t, doc.Characters, 1)
		assert.Equal(t, "Ivo", doc.Characters[0].Name)
		assert.Equal(t, []novel.LinkID{novel.NameLink("Forest")}, doc.Chapters[0].LocationsInChapter)
	})
}

// ============================================================================
// Credential and onboarding
// ============================================================================

func TestAPIKey(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	p := New(kv)
	assert.Empty(t, p.APIKey())

	require.NoError(t, p.SetAPIKey("  sk-test-123 \n"))
	assert.Equal(t, "sk-test-123", p.APIKey())

	require.NoError(t, p.SetAPIKey("   "))
	assert.Empty(t, p.APIKey())
	_, ok, err := kv.Get(CredentialKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetAPIKey_WritesAttachedDocument(t *testing.T) {
	kv := storage.NewMemoryKV(0)
	s := store.New(novel.NewDocument())
	p := New(kv)
	detach := p.Attach(s)
	defer detach()

	require.NoError(t, p.SetAPIKey("key"))
	doc := storedDocument(t, kv)
	assert.Len(t, doc.Chapters, 1)
}

func TestSetAPIKey_Error(t *testing.T) {
	err := New(failingKV{}).SetAPIKey("key")
	assert.ErrorIs(t, err, errDisk)
}

func TestOnboarding(t *testing.T) {
	p := New(storage.NewMemoryKV(0))
	assert.False(t, p.Onboarded())
	p.MarkOnboarded()
	assert.True(t, p.Onboarded())

	assert.False(t, New(failingKV{}, WithLogger(quietLogger(&bytes.Buffer{}))).Onboarded())
}

// ============================================================================
// Export and import
// ============================================================================

func sampleDocument() novel.Document {
	doc := novel.NewDocument()
	doc.Characters = []novel.Character{{ID: 10, Name: "Mara", Role: "Protagonist"}}
	doc.Locations = []novel.Location{{ID: 11, Name: "Lighthouse", Description: "White tower"}}
	doc.Objects = []novel.Object{{ID: 12, Name: "Brass key"}}
	doc.References = []novel.Reference{{ID: 13, Title: "Tides", Content: "High tide at dusk."}}
	doc.Chapters[0].Content = "The lamp went dark."
	doc.Chapters[0].CharactersInChapter = novel.IDLinks(10)
	doc.Chapters[0].Status = novel.StatusFinal
	doc.Chapters = append(doc.Chapters, novel.NewChapter("Chapter 2"))
	doc.CurrentChapterIndex = 1
	doc.Choices.Genre = novel.Ptr("Mystery")
	doc.Choices.Premise = "A keeper vanishes."
	return doc
}

func TestExport(t *testing.T) {
	data, err := Export(sampleDocument())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("{\n  \"")), "export is indented by two spaces")
	var generic map[string]any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Contains(t, generic, "chapters")
	assert.Contains(t, generic, "plotStructure")
}

func TestExportFile(t *testing.T) {
	dir := t.TempDir()
	path, err := ExportFile(sampleDocument(), dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ExportFileName), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := decodeDocument(t, data)
	assert.Equal(t, "Mara", doc.Characters[0].Name)
}

func TestImport(t *testing.T) {
	t.Run("round trips an export", func(t *testing.T) {
		original := sampleDocument()
		data, err := Export(original)
		require.NoError(t, err)

		s := store.New(novel.NewDocument())
		require.NoError(t, New(storage.NewMemoryKV(0)).Import(s, data))

		got := s.Document()
		wantJSON, err := json.Marshal(original)
		require.NoError(t, err)
		gotJSON, err := json.Marshal(got)
		require.NoError(t, err)
		assert.JSONEq(t, string(wantJSON), string(gotJSON))
	})

	t.Run("runs the import hook", func(t *testing.T) {
		calls := 0
		p := New(storage.NewMemoryKV(0), WithImportHook(func() { calls++ }))
		s := store.New(novel.NewDocument())

		require.NoError(t, p.Import(s, []byte(`{"chapters": [], "characters": []}`)))
		assert.Equal(t, 1, calls)
		assert.Len(t, s.Document().Chapters, 1, "empty chapters are replaced by a default chapter")
	})

	t.Run("is mirrored to storage", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		p := New(kv)
		s := store.New(novel.NewDocument())
		detach := p.Attach(s)
		defer detach()

		require.NoError(t, p.Import(s, []byte(`{"chapters": [{"title": "Imported"}], "characters": []}`)))
		assert.Equal(t, "Imported", storedDocument(t, kv).Chapters[0].Title)
	})

	malformed := []struct {
		name string
		data string
	}{
		{name: "not json", data: "plain text"},
		{name: "array", data: `[{"chapters": []}]`},
		{name: "missing characters", data: `{"chapters": []}`},
		{name: "missing chapters", data: `{"characters": []}`},
		{name: "empty", data: ""},
	}
	for _, tt := range malformed {
		t.Run("rejects "+tt.name, func(t *testing.T) {
			hooked := false
			p := New(storage.NewMemoryKV(0), WithImportHook(func() { hooked = true }))
			s := store.New(sampleDocument())
			before := s.Document()

			err := p.Import(s, []byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedImport)
			assert.False(t, hooked)
			assert.Equal(t, uint64(0), s.Version())
			assert.Equal(t, before, s.Document())
		})
	}
}

// ============================================================================
// Reset
// ============================================================================

func TestResetApplication(t *testing.T) {
	t.Run("clears storage and resets the document", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		p := New(kv)
		s := store.New(sampleDocument())
		require.NoError(t, p.SetAPIKey("key"))
		p.MarkOnboarded()
		require.NoError(t, kv.Set(DocumentKey, `{"chapters": [], "characters": []}`))

		require.NoError(t, p.ResetApplication(s))

		for _, key := range []string{DocumentKey, CredentialKey, OnboardingKey} {
			_, ok, err := kv.Get(key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}
		doc := s.Document()
		assert.Empty(t, doc.Characters)
		require.Len(t, doc.Chapters, 1)
		assert.Equal(t, novel.DefaultChapterTitle, doc.Chapters[0].Title)
	})

	t.Run("attached mirror does not rewrite the document", func(t *testing.T) {
		kv := storage.NewMemoryKV(0)
		p := New(kv)
		s := store.New(sampleDocument())
		detach := p.Attach(s)
		defer detach()
		s.Dispatch(store.ToggleChapterStatus{Index: 0})
		_, ok, err := kv.Get(DocumentKey)
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, p.ResetApplication(s))

		_, ok, err = kv.Get(DocumentKey)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, s.Document().Characters)

		s.Dispatch(store.ToggleChapterStatus{Index: 0})
		_, ok, err = kv.Get(DocumentKey)
		require.NoError(t, err)
		assert.True(t, ok, "later changes are mirrored again")
	})

	t.Run("reports storage errors after resetting", func(t *testing.T) {
		s := store.New(sampleDocument())
		err := New(failingKV{}).ResetApplication(s)

		assert.ErrorIs(t, err, errDisk)
		assert.Empty(t, s.Document().Characters)
	})
}
