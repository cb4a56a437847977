package schema

import (
	"encoding/json"
	"strconv"

	"github.com/azyu/novelcraft/internal/novel"
)

var (
	documentKeys  = keySet("characters", "locations", "objects", "references", "chapters", "currentChapterIndex", "choices", "plotStructure")
	characterKeys = keySet("id", "name", "role", "gender", "age", "country", "faceDescription", "hairDescription", "clothingDescription", "accessoryDescription", "height", "weight", "bodyShape")
	placeKeys     = keySet("id", "name", "description")
	referenceKeys = keySet("id", "title", "content")
	chapterKeys   = keySet("title", "content", "charactersInChapter", "locationsInChapter", "objectsInChapter", "status", "plotPoint", "summary")
	choiceKeys    = keySet("genre", "writingStyle", "premise", "synopsis", "opening", "incident")
	plotKeys      = keySet("totalChapters", "conflictChapter", "climaxChapter", "ending", "customEnding")
)

// Normalize converts a loosely typed document of any known version into the
// current shape. It never fails: missing or mistyped fields take factory
// defaults and unknown fields are carried in Extra. raw is not modified.
func Normalize(raw map[string]any) novel.Document {
	raw, _ = deepCopy(raw).(map[string]any)
	if raw == nil {
		raw = map[string]any{}
	}
	Migrate(raw)

	doc := novel.NewDocument()

	if list, ok := raw["characters"]; ok {
		doc.Characters = make([]novel.Character, 0, len(objects(list)))
		for _, m := range objects(list) {
			doc.Characters = append(doc.Characters, toCharacter(m))
		}
	}
	if list, ok := raw["locations"]; ok {
		doc.Locations = make([]novel.Location, 0, len(objects(list)))
		for _, m := range objects(list) {
			doc.Locations = append(doc.Locations, novel.Location{
				ID:          int64Field(m, "id"),
				Name:        stringField(m, "name"),
				Description: stringField(m, "description"),
				Extra:       extra(m, placeKeys),
			})
		}
	}
	if list, ok := raw["objects"]; ok {
		doc.Objects = make([]novel.Object, 0, len(objects(list)))
		for _, m := range objects(list) {
			doc.Objects = append(doc.Objects, novel.Object{
				ID:          int64Field(m, "id"),
				Name:        stringField(m, "name"),
				Description: stringField(m, "description"),
				Extra:       extra(m, placeKeys),
			})
		}
	}
	if list, ok := raw["references"]; ok {
		doc.References = make([]novel.Reference, 0, len(objects(list)))
		for _, m := range objects(list) {
			doc.References = append(doc.References, novel.Reference{
				ID:      int64Field(m, "id"),
				Title:   stringField(m, "title"),
				Content: stringField(m, "content"),
				Extra:   extra(m, referenceKeys),
			})
		}
	}

	if chapters := objects(raw["chapters"]); len(chapters) > 0 {
		doc.Chapters = make([]novel.Chapter, 0, len(chapters))
		for _, m := range chapters {
			doc.Chapters = append(doc.Chapters, toChapter(m))
		}
	}

	if idx, ok := toInt64(raw["currentChapterIndex"]); ok {
		doc.CurrentChapterIndex = clamp(int(idx), 0, len(doc.Chapters)-1)
	}

	if m, ok := raw["choices"].(map[string]any); ok {
		doc.Choices = mergeChoices(doc.Choices, m)
	}
	if m, ok := raw["plotStructure"].(map[string]any); ok {
		doc.PlotStructure = mergePlotStructure(doc.PlotStructure, m)
	}

	doc.Extra = extra(raw, documentKeys)
	return doc
}

func toCharacter(m map[string]any) novel.Character {
	role, _ := m["role"].(string)
	if role == "" {
		role = novel.RoleUnset
	}
	return novel.Character{
		ID:                   int64Field(m, "id"),
		Name:                 stringField(m, "name"),
		Role:                 role,
		Gender:               stringField(m, "gender"),
		Age:                  stringField(m, "age"),
		Country:              stringField(m, "country"),
		FaceDescription:      stringField(m, "faceDescription"),
		HairDescription:      stringField(m, "hairDescription"),
		ClothingDescription:  stringField(m, "clothingDescription"),
		AccessoryDescription: stringField(m, "accessoryDescription"),
		Height:               stringField(m, "height"),
		Weight:               stringField(m, "weight"),
		BodyShape:            stringField(m, "bodyShape"),
		Extra:                extra(m, characterKeys),
	}
}

func toChapter(m map[string]any) novel.Chapter {
	status := novel.StatusDraft
	if s, _ := m["status"].(string); s == string(novel.StatusFinal) {
		status = novel.StatusFinal
	}
	plotPoint, _ := m["plotPoint"].(string)
	if plotPoint == "" {
		plotPoint = novel.PlotPointUnset
	}
	return novel.Chapter{
		Title:               stringField(m, "title"),
		Content:             stringField(m, "content"),
		CharactersInChapter: links(m["charactersInChapter"]),
		LocationsInChapter:  links(m["locationsInChapter"]),
		ObjectsInChapter:    links(m["objectsInChapter"]),
		Status:              status,
		PlotPoint:           plotPoint,
		Summary:             stringField(m, "summary"),
		Extra:               extra(m, chapterKeys),
	}
}

func mergeChoices(c novel.Choices, m map[string]any) novel.Choices {
	if v, ok := m["genre"]; ok {
		c.Genre = nullableString(v)
	}
	if s, ok := m["writingStyle"].(string); ok {
		c.WritingStyle = s
	}
	if s, ok := m["premise"].(string); ok {
		c.Premise = s
	}
	if s, ok := m["synopsis"].(string); ok {
		c.Synopsis = s
	}
	if v, ok := m["opening"]; ok {
		c.Opening = nullableString(v)
	}
	if v, ok := m["incident"]; ok {
		c.Incident = nullableString(v)
	}
	c.Extra = extra(m, choiceKeys)
	return c
}

func mergePlotStructure(p novel.PlotStructure, m map[string]any) novel.PlotStructure {
	if n, ok := toInt64(m["totalChapters"]); ok {
		p.TotalChapters = int(n)
	}
	if n, ok := toInt64(m["conflictChapter"]); ok {
		p.ConflictChapter = int(n)
	}
	if n, ok := toInt64(m["climaxChapter"]); ok {
		p.ClimaxChapter = int(n)
	}
	if v, ok := m["ending"]; ok {
		p.Ending = nullableString(v)
	}
	if s, ok := m["customEnding"].(string); ok {
		p.CustomEnding = s
	}
	p.Extra = extra(m, plotKeys)
	return p
}

// links converts a JSON array of ids or names. Anything else yields an
// empty set.
func links(v any) []novel.LinkID {
	list, _ := v.([]any)
	out := make([]novel.LinkID, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			if s != "" {
				out = append(out, novel.NameLink(s))
			}
			continue
		}
		if id, ok := toInt64(item); ok {
			out = append(out, novel.IDLink(id))
		}
	}
	return out
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

func int64Field(m map[string]any, key string) int64 {
	id, _ := toInt64(m[key])
	return id
}

func nullableString(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// extra collects the fields of m outside known as raw JSON.
func extra(m map[string]any, known map[string]struct{}) map[string]json.RawMessage {
	var out map[string]json.RawMessage
	for key, v := range m {
		if _, ok := known[key]; ok {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if out == nil {
			out = make(map[string]json.RawMessage)
		}
		out[key] = data
	}
	return out
}

func keySet(keys ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func deepCopy(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = deepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = deepCopy(item)
		}
		return out
	case []string:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	case []int64:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = item
		}
		return out
	}
	return v
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
