// Package store holds the novel document and applies actions to it.
//
// Reduce is a pure function from (document, action) to document. Store wraps
// it with a single-writer dispatch loop, a version counter and change
// subscribers.
package store

import (
	"encoding/json"
	"math"

	"github.com/azyu/novelcraft/internal/novel"
	"github.com/azyu/novelcraft/internal/schema"
)

// Reduce applies a to doc and returns the next document. It never mutates
// doc: sequences it changes are freshly allocated, untouched ones are shared.
// When the action cannot change anything doc is returned as is.
func Reduce(doc novel.Document, a Action) novel.Document {
	next, _ := reduce(doc, a)
	return next
}

// reduce reports whether the action changed the document.
func reduce(doc novel.Document, a Action) (novel.Document, bool) {
	switch a := a.(type) {
	case SetDocument:
		return schema.Normalize(a.Raw), true

	case ResetDocument:
		return novel.NewDocument(), true

	case ResetWizardState:
		doc.Choices = novel.DefaultChoices()
		doc.PlotStructure = novel.DefaultPlotStructure()
		return doc, true

	case UpdateChoice:
		choices, ok := updateChoice(doc.Choices, a.Key, a.Value)
		if !ok {
			return doc, false
		}
		doc.Choices = choices
		return doc, true

	case UpdatePlotStructure:
		plot, ok := updatePlotStructure(doc.PlotStructure, a.Key, a.Value)
		if !ok {
			return doc, false
		}
		doc.PlotStructure = plot
		return doc, true

	case SetCurrentChapterContent:
		return updateChapter(doc, doc.CurrentChapterIndex, func(ch *novel.Chapter) { ch.Content = a.Content })

	case SetCurrentChapterIndex:
		idx := clamp(a.Index, 0, len(doc.Chapters)-1)
		if idx == doc.CurrentChapterIndex {
			return doc, false
		}
		doc.CurrentChapterIndex = idx
		return doc, true

	case ToggleChapterStatus:
		return updateChapter(doc, a.Index, func(ch *novel.Chapter) { ch.Status = ch.Status.Toggled() })

	case DeleteChapter:
		if len(doc.Chapters) <= 1 {
			return doc, false
		}
		chapters, ok := removeAt(doc.Chapters, a.Index)
		if !ok {
			return doc, false
		}
		doc.Chapters = chapters
		doc.CurrentChapterIndex = max(0, min(doc.CurrentChapterIndex, len(chapters)-1))
		return doc, true

	case AddChapter:
		doc.Chapters = appendTo(doc.Chapters, completeChapter(a.Chapter))
		return doc, true

	case ReplaceFirstChapter:
		if len(doc.Chapters) == 0 {
			doc.Chapters = []novel.Chapter{completeChapter(a.Chapter)}
			return doc, true
		}
		chapters, _ := replaceAt(doc.Chapters, 0, completeChapter(a.Chapter))
		doc.Chapters = chapters
		return doc, true

	case SetChapterPlotPoint:
		return updateChapter(doc, a.Index, func(ch *novel.Chapter) { ch.PlotPoint = a.Value })
	case SetChapterSummary:
		return updateChapter(doc, a.Index, func(ch *novel.Chapter) { ch.Summary = a.Value })
	case SetChapterContent:
		return updateChapter(doc, a.Index, func(ch *novel.Chapter) { ch.Content = a.Value })
	case SetChapterTitle:
		return updateChapter(doc, a.Index, func(ch *novel.Chapter) { ch.Title = a.Value })

	case AddCharacter:
		doc.Characters = appendTo(doc.Characters, a.Character.Clone())
		return doc, true
	case UpdateCharacter:
		var ok bool
		doc.Characters, ok = replaceAt(doc.Characters, a.Index, a.Character.Clone())
		return doc, ok
	case DeleteCharacter:
		var ok bool
		doc.Characters, ok = removeAt(doc.Characters, a.Index)
		return doc, ok

	case AddLocation:
		doc.Locations = appendTo(doc.Locations, a.Location.Clone())
		return doc, true
	case UpdateLocation:
		var ok bool
		doc.Locations, ok = replaceAt(doc.Locations, a.Index, a.Location.Clone())
		return doc, ok
	case DeleteLocation:
		var ok bool
		doc.Locations, ok = removeAt(doc.Locations, a.Index)
		return doc, ok

	case AddObject:
		doc.Objects = appendTo(doc.Objects, a.Object.Clone())
		return doc, true
	case UpdateObject:
		var ok bool
		doc.Objects, ok = replaceAt(doc.Objects, a.Index, a.Object.Clone())
		return doc, ok
	case DeleteObject:
		var ok bool
		doc.Objects, ok = removeAt(doc.Objects, a.Index)
		return doc, ok

	case AddReference:
		doc.References = appendTo(doc.References, a.Reference.Clone())
		return doc, true
	case UpdateReference:
		var ok bool
		doc.References, ok = replaceAt(doc.References, a.Index, a.Reference.Clone())
		return doc, ok
	case DeleteReference:
		var ok bool
		doc.References, ok = removeAt(doc.References, a.Index)
		return doc, ok
	}

	return doc, false
}

// updateChapter copies the chapter at i, applies fn and swaps it in.
func updateChapter(doc novel.Document, i int, fn func(*novel.Chapter)) (novel.Document, bool) {
	if i < 0 || i >= len(doc.Chapters) {
		return doc, false
	}
	ch := doc.Chapters[i].Clone()
	fn(&ch)
	doc.Chapters, _ = replaceAt(doc.Chapters, i, ch)
	return doc, true
}

// completeChapter fills zero fields of a caller-built chapter.
func completeChapter(ch novel.Chapter) novel.Chapter {
	ch = ch.Clone()
	if ch.Status != novel.StatusFinal {
		ch.Status = novel.StatusDraft
	}
	if ch.PlotPoint == "" {
		ch.PlotPoint = novel.PlotPointUnset
	}
	return ch
}

func updateChoice(c novel.Choices, key string, value any) (novel.Choices, bool) {
	c = c.Clone()
	switch key {
	case "genre":
		return c, setNullable(&c.Genre, value)
	case "opening":
		return c, setNullable(&c.Opening, value)
	case "incident":
		return c, setNullable(&c.Incident, value)
	case "writingStyle":
		return c, setString(&c.WritingStyle, value)
	case "premise":
		return c, setString(&c.Premise, value)
	case "synopsis":
		return c, setString(&c.Synopsis, value)
	}
	return c, false
}

func updatePlotStructure(p novel.PlotStructure, key string, value any) (novel.PlotStructure, bool) {
	switch key {
	case "totalChapters":
		return p, setInt(&p.TotalChapters, value)
	case "conflictChapter":
		return p, setInt(&p.ConflictChapter, value)
	case "climaxChapter":
		return p, setInt(&p.ClimaxChapter, value)
	case "ending":
		return p, setNullable(&p.Ending, value)
	case "customEnding":
		return p, setString(&p.CustomEnding, value)
	}
	return p, false
}

func setNullable(dst **string, value any) bool {
	switch v := value.(type) {
	case nil:
		*dst = nil
	case string:
		*dst = &v
	case *string:
		if v == nil {
			*dst = nil
		} else {
			s := *v
			*dst = &s
		}
	default:
		return false
	}
	return true
}

func setString(dst *string, value any) bool {
	s, ok := value.(string)
	if ok {
		*dst = s
	}
	return ok
}

func setInt(dst *int, value any) bool {
	switch v := value.(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		if v != math.Trunc(v) {
			return false
		}
		*dst = int(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return false
		}
		*dst = int(n)
	default:
		return false
	}
	return true
}

func appendTo[T any](s []T, v T) []T {
	out := make([]T, len(s), len(s)+1)
	copy(out, s)
	return append(out, v)
}

func replaceAt[T any](s []T, i int, v T) ([]T, bool) {
	if i < 0 || i >= len(s) {
		return s, false
	}
	out := make([]T, len(s))
	copy(out, s)
	out[i] = v
	return out, true
}

func removeAt[T any](s []T, i int) ([]T, bool) {
	if i < 0 || i >= len(s) {
		return s, false
	}
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...), true
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return max(lo, min(v, hi))
}
