package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azyu/novelcraft/internal/novel"
)

func mustParse(t *testing.T, s string) map[string]any {
	t.Helper()
	raw, err := Parse([]byte(s))
	require.NoError(t, err)
	return raw
}

// =============================================================================
// Parse and shape checks
// =============================================================================

func TestParse(t *testing.T) {
	t.Run("keeps large ids exact", func(t *testing.T) {
		raw := mustParse(t, `{"characters":[{"id":1712345678901}]}`)
		chars := raw["characters"].([]any)
		assert.Equal(t, json.Number("1712345678901"), chars[0].(map[string]any)["id"])
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, err := Parse([]byte(`{"chapters": [`))
		assert.ErrorIs(t, err, ErrInvalidJSON)
	})

	t.Run("rejects non objects", func(t *testing.T) {
		_, err := Parse([]byte(`[1,2,3]`))
		assert.ErrorIs(t, err, ErrNotObject)
	})
}

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{name: "both keys present", in: `{"chapters":[],"characters":[]}`},
		{name: "null values count as present", in: `{"chapters":null,"characters":null}`},
		{name: "missing characters", in: `{"chapters":[]}`, wantErr: ErrMissingKey},
		{name: "array root", in: `[]`, wantErr: ErrNotObject},
		{name: "garbage", in: `not json`, wantErr: ErrInvalidJSON},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckShape([]byte(tt.in))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDetect(t *testing.T) {
	found := Detect([]byte(`{
		"referencePageContent": "notes",
		"chapters": [{"title": "One", "locationInChapter": "Forest"}]
	}`))
	assert.ElementsMatch(t, []string{MigrationReferencePage, MigrationLocationSet}, found)

	assert.Empty(t, Detect([]byte(`{"chapters":[{"locationsInChapter":[]}]}`)))
}

// =============================================================================
// Migrations
// =============================================================================

func TestNormalizeLegacyLocation(t *testing.T) {
	t.Run("name becomes a one-element set", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"title":"One","content":"x","locationInChapter":"Forest"}],"characters":[]}`)

		doc := Normalize(raw)

		require.Len(t, doc.Chapters, 1)
		assert.Equal(t, []novel.LinkID{novel.NameLink("Forest")}, doc.Chapters[0].LocationsInChapter)
		assert.Equal(t, []novel.LinkID{}, doc.Chapters[0].ObjectsInChapter)
		assert.NotContains(t, doc.Chapters[0].Extra, "locationInChapter")
	})

	t.Run("id becomes an id link", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"locationInChapter":42}]}`)
		doc := Normalize(raw)
		assert.Equal(t, []novel.LinkID{novel.IDLink(42)}, doc.Chapters[0].LocationsInChapter)
	})

	t.Run("null becomes an empty set", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"locationInChapter":null}]}`)
		doc := Normalize(raw)
		assert.Equal(t, []novel.LinkID{}, doc.Chapters[0].LocationsInChapter)
	})

	t.Run("existing set wins", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"locationInChapter":"Old","locationsInChapter":[7]}]}`)
		doc := Normalize(raw)
		assert.Equal(t, []novel.LinkID{novel.IDLink(7)}, doc.Chapters[0].LocationsInChapter)
	})

	t.Run("null set falls back to the legacy location", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"locationInChapter":"Forest","locationsInChapter":null}]}`)
		doc := Normalize(raw)
		assert.Equal(t, []novel.LinkID{novel.NameLink("Forest")}, doc.Chapters[0].LocationsInChapter)
	})

	t.Run("empty set is kept", func(t *testing.T) {
		raw := mustParse(t, `{"chapters":[{"locationInChapter":"Forest","locationsInChapter":[]}]}`)
		doc := Normalize(raw)
		assert.Equal(t, []novel.LinkID{}, doc.Chapters[0].LocationsInChapter)
	})
}

func TestNormalizeReferencePage(t *testing.T) {
	t.Run("synthesizes a reference when none exist", func(t *testing.T) {
		raw := mustParse(t, `{"referencePageContent":"The moon has two names.","characters":[{"id":100}],"chapters":[]}`)

		doc := Normalize(raw)

		require.Len(t, doc.References, 1)
		assert.Equal(t, novel.ImportedReferenceName, doc.References[0].Title)
		assert.Equal(t, "The moon has two names.", doc.References[0].Content)
		assert.Equal(t, int64(101), doc.References[0].ID)
		assert.NotContains(t, doc.Extra, "referencePageContent")
	})

	t.Run("existing references are kept as is", func(t *testing.T) {
		raw := mustParse(t, `{"referencePageContent":"old","references":[{"id":5,"title":"Map","content":"north"}]}`)

		doc := Normalize(raw)

		require.Len(t, doc.References, 1)
		assert.Equal(t, "Map", doc.References[0].Title)
		assert.NotContains(t, doc.Extra, "referencePageContent")
	})

	t.Run("empty page adds nothing", func(t *testing.T) {
		doc := Normalize(mustParse(t, `{"referencePageContent":""}`))
		assert.Empty(t, doc.References)
	})
}

func TestNormalizeStripsChapterReferenceText(t *testing.T) {
	doc := Normalize(mustParse(t, `{"chapters":[{"title":"A","referenceText":"old notes"}]}`))
	assert.NotContains(t, doc.Chapters[0].Extra, "referenceText")
}

// =============================================================================
// Defaults and passthrough
// =============================================================================

func TestNormalizeDefaults(t *testing.T) {
	t.Run("empty object yields the factory document", func(t *testing.T) {
		doc := Normalize(map[string]any{})
		fresh := novel.NewDocument()

		assert.Equal(t, fresh.Chapters, doc.Chapters)
		assert.Equal(t, fresh.Choices, doc.Choices)
		assert.Equal(t, fresh.PlotStructure, doc.PlotStructure)
		assert.NotNil(t, doc.Characters)
	})

	t.Run("nil map is treated as empty", func(t *testing.T) {
		doc := Normalize(nil)
		assert.Len(t, doc.Chapters, 1)
	})

	t.Run("fills missing chapter and character fields", func(t *testing.T) {
		raw := mustParse(t, `{
			"characters":[{"id":1,"name":"Ayu"}],
			"chapters":[{"title":"One","content":"text","status":"published"}]
		}`)

		doc := Normalize(raw)

		assert.Equal(t, novel.RoleUnset, doc.Characters[0].Role)
		ch := doc.Chapters[0]
		assert.Equal(t, novel.StatusDraft, ch.Status)
		assert.Equal(t, novel.PlotPointUnset, ch.PlotPoint)
		assert.Equal(t, "", ch.Summary)
		assert.Equal(t, []novel.LinkID{}, ch.CharactersInChapter)
		assert.Equal(t, []novel.LinkID{}, ch.ObjectsInChapter)
	})

	t.Run("empty or mistyped role and plot point become unset", func(t *testing.T) {
		raw := mustParse(t, `{
			"characters":[{"id":1,"name":"Ayu","role":""},{"id":2,"name":"Bo","role":3}],
			"chapters":[{"plotPoint":""},{"plotPoint":null}]
		}`)

		doc := Normalize(raw)

		assert.Equal(t, novel.RoleUnset, doc.Characters[0].Role)
		assert.Equal(t, novel.RoleUnset, doc.Characters[1].Role)
		assert.Equal(t, novel.PlotPointUnset, doc.Chapters[0].PlotPoint)
		assert.Equal(t, novel.PlotPointUnset, doc.Chapters[1].PlotPoint)
	})

	t.Run("keeps final status", func(t *testing.T) {
		doc := Normalize(mustParse(t, `{"chapters":[{"status":"final"}]}`))
		assert.Equal(t, novel.StatusFinal, doc.Chapters[0].Status)
	})

	t.Run("clamps the current chapter index", func(t *testing.T) {
		doc := Normalize(mustParse(t, `{"chapters":[{},{}],"currentChapterIndex":9}`))
		assert.Equal(t, 1, doc.CurrentChapterIndex)

		doc = Normalize(mustParse(t, `{"chapters":[{},{}],"currentChapterIndex":-3}`))
		assert.Equal(t, 0, doc.CurrentChapterIndex)
	})

	t.Run("merges partial choices onto defaults", func(t *testing.T) {
		doc := Normalize(mustParse(t, `{"choices":{"genre":"Horror","mood":"bleak"},"plotStructure":{"totalChapters":20}}`))

		assert.Equal(t, "Horror", novel.Deref(doc.Choices.Genre))
		assert.Equal(t, novel.DefaultWritingStyle, doc.Choices.WritingStyle)
		assert.JSONEq(t, `"bleak"`, string(doc.Choices.Extra["mood"]))
		assert.Equal(t, 20, doc.PlotStructure.TotalChapters)
		assert.Equal(t, novel.DefaultConflictChapter, doc.PlotStructure.ConflictChapter)
	})

	t.Run("null clears nullable choices", func(t *testing.T) {
		doc := Normalize(mustParse(t, `{"choices":{"genre":null,"opening":"A door opens."}}`))
		assert.Nil(t, doc.Choices.Genre)
		assert.Equal(t, "A door opens.", novel.Deref(doc.Choices.Opening))
	})

	t.Run("unknown fields are carried through", func(t *testing.T) {
		raw := mustParse(t, `{
			"appVersion":"3",
			"characters":[{"id":1,"mbti":"INTJ"}],
			"chapters":[{"title":"One","wordGoal":2000}]
		}`)

		doc := Normalize(raw)

		assert.JSONEq(t, `"3"`, string(doc.Extra["appVersion"]))
		assert.JSONEq(t, `"INTJ"`, string(doc.Characters[0].Extra["mbti"]))
		assert.JSONEq(t, `2000`, string(doc.Chapters[0].Extra["wordGoal"]))
	})

	t.Run("accepts go-typed input", func(t *testing.T) {
		raw := map[string]any{
			"characters": []map[string]any{{"id": 7, "name": "Bima", "role": "mentor"}},
			"chapters": []any{map[string]any{
				"title":               "One",
				"charactersInChapter": []int64{7},
				"locationInChapter":   "Harbor",
			}},
		}

		doc := Normalize(raw)

		assert.Equal(t, int64(7), doc.Characters[0].ID)
		assert.Equal(t, []novel.LinkID{novel.IDLink(7)}, doc.Chapters[0].CharactersInChapter)
		assert.Equal(t, []novel.LinkID{novel.NameLink("Harbor")}, doc.Chapters[0].LocationsInChapter)
		assert.Contains(t, raw["chapters"].([]any)[0].(map[string]any), "locationInChapter")
	})
}

func TestNormalizeIsStable(t *testing.T) {
	payload := `{
		"referencePageContent":"lore",
		"characters":[{"id":3,"name":"Rin"}],
		"chapters":[{"title":"One","locationInChapter":"Forest","status":"final","extraField":true}],
		"choices":{"genre":"Fantasy"},
		"schemaHint":1
	}`

	t.Run("raw input is not modified", func(t *testing.T) {
		raw := mustParse(t, payload)
		Normalize(raw)
		assert.Contains(t, raw, "referencePageContent")
		assert.Contains(t, raw["chapters"].([]any)[0].(map[string]any), "locationInChapter")
	})

	t.Run("same input gives the same document", func(t *testing.T) {
		raw := mustParse(t, payload)
		assert.Equal(t, Normalize(raw), Normalize(raw))
	})

	t.Run("normalizing an export reproduces it", func(t *testing.T) {
		first := Normalize(mustParse(t, payload))

		data, err := json.Marshal(first)
		require.NoError(t, err)
		second := Normalize(mustParse(t, string(data)))

		assert.Equal(t, first, second)
	})
}
