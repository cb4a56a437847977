package schema

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/azyu/novelcraft/internal/novel"
)

// Migration names, as reported by Detect and Migrate.
const (
	MigrationLocationSet          = "chapter-location-set"
	MigrationReferencePage        = "reference-page"
	MigrationChapterReferenceText = "chapter-reference-text"
)

type migration struct {
	name    string
	applies func(raw map[string]any) bool
	apply   func(raw map[string]any)
}

// migrations run in order on a private copy of the raw document.
var migrations = []migration{
	{name: MigrationLocationSet, applies: hasChapterKey("locationInChapter"), apply: migrateLocationSet},
	{name: MigrationReferencePage, applies: hasKey("referencePageContent"), apply: migrateReferencePage},
	{name: MigrationChapterReferenceText, applies: hasChapterKey("referenceText"), apply: stripChapterKey("referenceText")},
}

// Migrate rewrites legacy fields in raw in place and returns the names of
// the migrations that ran.
func Migrate(raw map[string]any) []string {
	var ran []string
	for _, m := range migrations {
		if m.applies(raw) {
			m.apply(raw)
			ran = append(ran, m.name)
		}
	}
	return ran
}

func hasKey(key string) func(map[string]any) bool {
	return func(raw map[string]any) bool {
		_, ok := raw[key]
		return ok
	}
}

func hasChapterKey(key string) func(map[string]any) bool {
	return func(raw map[string]any) bool {
		for _, ch := range objects(raw["chapters"]) {
			if _, ok := ch[key]; ok {
				return true
			}
		}
		return false
	}
}

func stripChapterKey(key string) func(map[string]any) {
	return func(raw map[string]any) {
		for _, ch := range objects(raw["chapters"]) {
			delete(ch, key)
		}
	}
}

// migrateLocationSet turns the single-location field into a one-element set.
// A chapter that already has a location set keeps it; a null set counts as
// missing.
func migrateLocationSet(raw map[string]any) {
	for _, ch := range objects(raw["chapters"]) {
		legacy, ok := ch["locationInChapter"]
		if !ok {
			continue
		}
		delete(ch, "locationInChapter")

		if set, has := ch["locationsInChapter"]; has && set != nil {
			continue
		}
		if link, ok := toLink(legacy); ok {
			ch["locationsInChapter"] = []any{link}
		} else {
			ch["locationsInChapter"] = []any{}
		}
	}
}

// migrateReferencePage turns the single free-form reference page into a
// Reference when the document has none. The synthesized id is one above the
// largest id in the document, so decoding the same payload twice yields the
// same result.
func migrateReferencePage(raw map[string]any) {
	content, _ := raw["referencePageContent"].(string)
	delete(raw, "referencePageContent")

	if len(objects(raw["references"])) > 0 || content == "" {
		return
	}
	raw["references"] = []any{map[string]any{
		"id":      json.Number(strconv.FormatInt(maxEntityID(raw)+1, 10)),
		"title":   novel.ImportedReferenceName,
		"content": content,
	}}
}

func maxEntityID(raw map[string]any) int64 {
	var highest int64
	for _, key := range []string{"characters", "locations", "objects", "references"} {
		for _, entity := range objects(raw[key]) {
			if id, ok := toInt64(entity["id"]); ok && id > highest {
				highest = id
			}
		}
	}
	return highest
}

// toLink converts a legacy scalar into a link value: ids stay numeric and
// names stay strings. Empty values are dropped.
func toLink(v any) (any, bool) {
	switch x := v.(type) {
	case string:
		if x == "" {
			return nil, false
		}
		return x, true
	case nil:
		return nil, false
	}
	if id, ok := toInt64(v); ok {
		return json.Number(strconv.FormatInt(id, 10)), true
	}
	return nil, false
}

// objects returns the elements of v that are JSON objects.
func objects(v any) []map[string]any {
	switch list := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return list
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
