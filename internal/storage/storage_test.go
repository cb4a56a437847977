package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/novel"
)

// =============================================================================
// TestAtomicWriteFile
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	t.Run("writes file and verifies content", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "test.txt")
		expected := []byte("Hello, World!")

		require.NoError(t, AtomicWriteFile(targetPath, expected))

		actual, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, expected, actual)
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "overwrite.txt")

		require.NoError(t, AtomicWriteFile(targetPath, []byte("original content")))
		require.NoError(t, AtomicWriteFile(targetPath, []byte("new content")))

		actual, err := os.ReadFile(targetPath)
		require.NoError(t, err)
		assert.Equal(t, "new content", string(actual))
	})

	t.Run("creates parent directories if they do not exist", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "a", "b", "c", "file.txt")

		require.NoError(t, AtomicWriteFile(targetPath, []byte("nested")))

		_, err := os.Stat(targetPath)
		assert.NoError(t, err)
	})

	t.Run("applies the requested mode", func(t *testing.T) {
		targetPath := filepath.Join(t.TempDir(), "secret")

		require.NoError(t, AtomicWriteFileMode(targetPath, []byte("sk-123"), 0600))

		info, err := os.Stat(targetPath)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	})
}

func TestAtomicWriter(t *testing.T) {
	t.Run("abort cleans up temp file", func(t *testing.T) {
		dir := t.TempDir()
		targetPath := filepath.Join(dir, "aborted.txt")

		writer, err := NewAtomicWriter(targetPath, 0644)
		require.NoError(t, err)
		_, err = writer.Write([]byte("partial"))
		require.NoError(t, err)
		require.NoError(t, writer.Abort())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

// =============================================================================
// KV backends
// =============================================================================

// kvContract runs the behavior every KV backend shares.
func kvContract(t *testing.T, kv KV) {
	t.Helper()

	t.Run("missing key is absent", func(t *testing.T) {
		v, ok, err := kv.Get("missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("set then get", func(t *testing.T) {
		require.NoError(t, kv.Set("novelcraft_document_v1", `{"chapters":[]}`))

		v, ok, err := kv.Get("novelcraft_document_v1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, `{"chapters":[]}`, v)
	})

	t.Run("set replaces", func(t *testing.T) {
		require.NoError(t, kv.Set("k", "one"))
		require.NoError(t, kv.Set("k", "two"))

		v, _, err := kv.Get("k")
		require.NoError(t, err)
		assert.Equal(t, "two", v)
	})

	t.Run("empty value is present", func(t *testing.T) {
		require.NoError(t, kv.Set("flag", ""))

		_, ok, err := kv.Get("flag")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete removes and tolerates missing keys", func(t *testing.T) {
		require.NoError(t, kv.Set("gone", "x"))
		require.NoError(t, kv.Delete("gone"))
		require.NoError(t, kv.Delete("gone"))

		_, ok, err := kv.Get("gone")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryKV(t *testing.T) {
	kvContract(t, NewMemoryKV(0))

	t.Run("quota rejects oversized writes", func(t *testing.T) {
		kv := NewMemoryKV(10)
		require.NoError(t, kv.Set("a", "12345"))

		assert.ErrorIs(t, kv.Set("b", "1234567"), ErrQuotaExceeded)
		require.NoError(t, kv.Set("a", "1234567890"))

		_, ok, _ := kv.Get("b")
		assert.False(t, ok)
	})

	t.Run("closed store refuses access", func(t *testing.T) {
		kv := NewMemoryKV(0)
		require.NoError(t, kv.Close())

		_, _, err := kv.Get("a")
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, kv.Set("a", "b"), ErrClosed)
	})
}

func TestFileKV(t *testing.T) {
	kv, err := NewFileKV(t.TempDir())
	require.NoError(t, err)
	kvContract(t, kv)

	t.Run("keys with separators stay inside the directory", func(t *testing.T) {
		dir := t.TempDir()
		kv, err := NewFileKV(dir)
		require.NoError(t, err)

		require.NoError(t, kv.Set("../escape/key", "v"))

		v, ok, err := kv.Get("../escape/key")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "v", v)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
		_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape"))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("quota counts other keys", func(t *testing.T) {
		kv, err := NewFileKV(t.TempDir(), WithQuota(8))
		require.NoError(t, err)

		require.NoError(t, kv.Set("a", "1234"))
		assert.ErrorIs(t, kv.Set("b", "123456"), ErrQuotaExceeded)
		require.NoError(t, kv.Set("a", "12345678"))
	})

	t.Run("values persist across instances", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewFileKV(dir)
		require.NoError(t, err)
		require.NoError(t, first.Set("novelcraft_has_loaded", "true"))

		second, err := NewFileKV(dir)
		require.NoError(t, err)
		v, ok, err := second.Get("novelcraft_has_loaded")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "true", v)
	})
}

// =============================================================================
// Manuscript
// =============================================================================

func manuscriptDoc() novel.Document {
	doc := novel.NewDocument()
	doc.Chapters[0].Title = "The Map"
	doc.Chapters[0].Content = "Rain fell on the harbor.\n\nSari unfolded the map."
	doc.Chapters[0].Status = novel.StatusFinal
	second := novel.NewChapter("The Storm")
	second.Content = "Thunder & lightning."
	doc.Chapters = append(doc.Chapters, second)
	return doc
}

func TestManuscript(t *testing.T) {
	m := NewManuscript()

	t.Run("markdown has headings per chapter", func(t *testing.T) {
		out, err := m.Render(manuscriptDoc(), ManuscriptOptions{Title: "Harbor", Format: FormatMarkdown})
		require.NoError(t, err)

		s := string(out)
		assert.True(t, strings.HasPrefix(s, "# Harbor\n\n"))
		assert.Contains(t, s, "## The Map\n\nRain fell on the harbor.\n\nSari unfolded the map.\n\n")
		assert.Contains(t, s, "## The Storm")
	})

	t.Run("final only skips drafts", func(t *testing.T) {
		out, err := m.Render(manuscriptDoc(), ManuscriptOptions{Format: FormatText, FinalOnly: true})
		require.NoError(t, err)

		assert.Contains(t, string(out), "The Map")
		assert.NotContains(t, string(out), "The Storm")
	})

	t.Run("html escapes and wraps", func(t *testing.T) {
		out, err := m.Render(manuscriptDoc(), ManuscriptOptions{Title: "Harbor <1>", Format: FormatHTML})
		require.NoError(t, err)

		s := string(out)
		assert.Contains(t, s, "<title>Harbor &lt;1&gt;</title>")
		assert.Contains(t, s, "<h2>The Map</h2>")
		assert.Contains(t, s, "<p>Thunder &amp; lightning.</p>")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := m.Render(manuscriptDoc(), ManuscriptOptions{Format: "pdf"})
		assert.Error(t, err)
	})

	t.Run("write file", func(t *testing.T) {
		path := FileName(t.TempDir(), "My Novel!", FormatText)
		assert.Equal(t, "my_novel_.txt", filepath.Base(path))

		require.NoError(t, m.WriteFile(manuscriptDoc(), ManuscriptOptions{Format: FormatText}, path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Sari unfolded the map.")
	})
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain prose is unchanged", in: "She ran.\n\nHe followed.", want: "She ran.\n\nHe followed."},
		{name: "emphasis is dropped", in: "It was *very* **dark**.", want: "It was very dark."},
		{name: "headings become paragraphs", in: "# Chapter 3\n\nThe door creaked.", want: "Chapter 3\n\nThe door creaked."},
		{name: "list markers are dropped", in: "- apples\n- pears", want: "apples\n\npears"},
		{name: "soft breaks are kept", in: "line one\nline two", want: "line one\nline two"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}
