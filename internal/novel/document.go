// Package novel defines the novel project document and the entities it owns.
package novel

import (
	"encoding/json"
)

// Status is the editorial state of a chapter.
type Status string

const (
	StatusDraft Status = "draft"
	StatusFinal Status = "final"
)

// Toggled returns the opposite status. Anything that is not final toggles to final.
func (s Status) Toggled() Status {
	if s == StatusFinal {
		return StatusDraft
	}
	return StatusFinal
}

// Document is the root aggregate of a novel project.
// Chapters is never empty and CurrentChapterIndex always addresses one of them.
type Document struct {
	Characters          []Character   `json:"characters"`
	Locations           []Location    `json:"locations"`
	Objects             []Object      `json:"objects"`
	References          []Reference   `json:"references"`
	Chapters            []Chapter     `json:"chapters"`
	CurrentChapterIndex int           `json:"currentChapterIndex"`
	Choices             Choices       `json:"choices"`
	PlotStructure       PlotStructure `json:"plotStructure"`

	// Extra holds top-level fields this version does not know about.
	// They are written back unchanged on export.
	Extra map[string]json.RawMessage `json:"-"`
}

// Character is a member of the cast. ID never changes after creation.
type Character struct {
	ID                   int64  `json:"id"`
	Name                 string `json:"name"`
	Role                 string `json:"role"`
	Gender               string `json:"gender"`
	Age                  string `json:"age"`
	Country              string `json:"country"`
	FaceDescription      string `json:"faceDescription"`
	HairDescription      string `json:"hairDescription"`
	ClothingDescription  string `json:"clothingDescription"`
	AccessoryDescription string `json:"accessoryDescription"`
	Height               string `json:"height"`
	Weight               string `json:"weight"`
	BodyShape            string `json:"bodyShape"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Location is a place in the story world.
type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Object is a notable item in the story world.
type Object struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Reference is factual grounding material handed to the generation flow.
type Reference struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Content string `json:"content"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Chapter is addressed by its position in Document.Chapters.
// The link sets are weak references to entity ids.
type Chapter struct {
	Title               string   `json:"title"`
	Content             string   `json:"content"`
	CharactersInChapter []LinkID `json:"charactersInChapter"`
	LocationsInChapter  []LinkID `json:"locationsInChapter"`
	ObjectsInChapter    []LinkID `json:"objectsInChapter"`
	Status              Status   `json:"status"`
	PlotPoint           string   `json:"plotPoint"`
	Summary             string   `json:"summary"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Choices is the story foundation picked in the wizard.
type Choices struct {
	Genre        *string `json:"genre"`
	WritingStyle string  `json:"writingStyle"`
	Premise      string  `json:"premise"`
	Synopsis     string  `json:"synopsis"`
	Opening      *string `json:"opening"`
	Incident     *string `json:"incident"`

	Extra map[string]json.RawMessage `json:"-"`
}

// PlotStructure is the chapter blueprint of the novel.
type PlotStructure struct {
	TotalChapters   int     `json:"totalChapters" validate:"min=3,max=500"`
	ConflictChapter int     `json:"conflictChapter" validate:"gt=1,ltfield=ClimaxChapter"`
	ClimaxChapter   int     `json:"climaxChapter" validate:"ltfield=TotalChapters"`
	Ending          *string `json:"ending"`
	CustomEnding    string  `json:"customEnding"`

	Extra map[string]json.RawMessage `json:"-" validate:"-"`
}

// MarshalJSON writes the document including any passthrough fields.
func (d Document) MarshalJSON() ([]byte, error) {
	type plain Document
	return marshalWithExtra(plain(d), d.Extra)
}

// MarshalJSON writes the choices including any passthrough fields.
func (c Choices) MarshalJSON() ([]byte, error) {
	type plain Choices
	return marshalWithExtra(plain(c), c.Extra)
}

// MarshalJSON writes the plot structure including any passthrough fields.
func (p PlotStructure) MarshalJSON() ([]byte, error) {
	type plain PlotStructure
	return marshalWithExtra(plain(p), p.Extra)
}

// MarshalJSON writes the character including any passthrough fields.
func (c Character) MarshalJSON() ([]byte, error) {
	type plain Character
	return marshalWithExtra(plain(c), c.Extra)
}

// MarshalJSON writes the location including any passthrough fields.
func (l Location) MarshalJSON() ([]byte, error) {
	type plain Location
	return marshalWithExtra(plain(l), l.Extra)
}

// MarshalJSON writes the object including any passthrough fields.
func (o Object) MarshalJSON() ([]byte, error) {
	type plain Object
	return marshalWithExtra(plain(o), o.Extra)
}

// MarshalJSON writes the reference including any passthrough fields.
func (r Reference) MarshalJSON() ([]byte, error) {
	type plain Reference
	return marshalWithExtra(plain(r), r.Extra)
}

// MarshalJSON writes the chapter including any passthrough fields.
func (c Chapter) MarshalJSON() ([]byte, error) {
	type plain Chapter
	return marshalWithExtra(plain(c), c.Extra)
}

// marshalWithExtra encodes v and adds extra fields that v does not already define.
func marshalWithExtra(v any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil || len(extra) == 0 {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for key, raw := range extra {
		if _, ok := fields[key]; !ok {
			fields[key] = raw
		}
	}
	return json.Marshal(fields)
}

// CurrentChapter returns the chapter at CurrentChapterIndex.
func (d Document) CurrentChapter() (Chapter, bool) {
	if d.CurrentChapterIndex < 0 || d.CurrentChapterIndex >= len(d.Chapters) {
		return Chapter{}, false
	}
	return d.Chapters[d.CurrentChapterIndex], true
}

// CharacterIndex returns the position of the character with the given id.
func (d Document) CharacterIndex(id int64) (int, bool) {
	for i, c := range d.Characters {
		if c.ID == id {
			return i, true
		}
	}
	return -1, false
}

// LocationIndex returns the position of the location with the given id.
func (d Document) LocationIndex(id int64) (int, bool) {
	for i, l := range d.Locations {
		if l.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ObjectIndex returns the position of the object with the given id.
func (d Document) ObjectIndex(id int64) (int, bool) {
	for i, o := range d.Objects {
		if o.ID == id {
			return i, true
		}
	}
	return -1, false
}

// ReferenceIndex returns the position of the reference with the given id.
func (d Document) ReferenceIndex(id int64) (int, bool) {
	for i, r := range d.References {
		if r.ID == id {
			return i, true
		}
	}
	return -1, false
}

// MaxID returns the largest entity id in the document, or 0.
func (d Document) MaxID() int64 {
	var highest int64
	for _, c := range d.Characters {
		highest = max(highest, c.ID)
	}
	for _, l := range d.Locations {
		highest = max(highest, l.ID)
	}
	for _, o := range d.Objects {
		highest = max(highest, o.ID)
	}
	for _, r := range d.References {
		highest = max(highest, r.ID)
	}
	return highest
}

// DanglingLink is a chapter link whose target entity no longer exists.
type DanglingLink struct {
	ChapterIndex int
	Kind         string // character, location, object
	Link         LinkID
}

// DanglingLinks reports chapter links that point at deleted entities.
// Links stay in place; deleting an entity never rewrites chapters.
func (d Document) DanglingLinks() []DanglingLink {
	var dangling []DanglingLink
	for i, ch := range d.Chapters {
		for _, link := range ch.CharactersInChapter {
			if _, ok := d.CharacterIndex(link.ID); link.IsName() || !ok {
				dangling = append(dangling, DanglingLink{ChapterIndex: i, Kind: "character", Link: link})
			}
		}
		for _, link := range ch.LocationsInChapter {
			if link.IsName() {
				// Legacy links name a location rather than point at one.
				if !d.hasLocationNamed(link.Name) {
					dangling = append(dangling, DanglingLink{ChapterIndex: i, Kind: "location", Link: link})
				}
				continue
			}
			if _, ok := d.LocationIndex(link.ID); !ok {
				dangling = append(dangling, DanglingLink{ChapterIndex: i, Kind: "location", Link: link})
			}
		}
		for _, link := range ch.ObjectsInChapter {
			if _, ok := d.ObjectIndex(link.ID); link.IsName() || !ok {
				dangling = append(dangling, DanglingLink{ChapterIndex: i, Kind: "object", Link: link})
			}
		}
	}
	return dangling
}

func (d Document) hasLocationNamed(name string) bool {
	for _, l := range d.Locations {
		if l.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no slices, maps or pointers with d.
func (d Document) Clone() Document {
	out := d
	out.Characters = make([]Character, len(d.Characters))
	for i, c := range d.Characters {
		out.Characters[i] = c.Clone()
	}
	out.Locations = make([]Location, len(d.Locations))
	for i, l := range d.Locations {
		out.Locations[i] = l.Clone()
	}
	out.Objects = make([]Object, len(d.Objects))
	for i, o := range d.Objects {
		out.Objects[i] = o.Clone()
	}
	out.References = make([]Reference, len(d.References))
	for i, r := range d.References {
		out.References[i] = r.Clone()
	}
	out.Chapters = make([]Chapter, len(d.Chapters))
	for i, ch := range d.Chapters {
		out.Chapters[i] = ch.Clone()
	}
	out.Choices = d.Choices.Clone()
	out.PlotStructure.Ending = clonePtr(d.PlotStructure.Ending)
	out.PlotStructure.Extra = cloneExtra(d.PlotStructure.Extra)
	out.Extra = cloneExtra(d.Extra)
	return out
}

// Clone returns a copy of the character with its own Extra map.
func (c Character) Clone() Character {
	c.Extra = cloneExtra(c.Extra)
	return c
}

// Clone returns a copy of the location with its own Extra map.
func (l Location) Clone() Location {
	l.Extra = cloneExtra(l.Extra)
	return l
}

// Clone returns a copy of the object with its own Extra map.
func (o Object) Clone() Object {
	o.Extra = cloneExtra(o.Extra)
	return o
}

// Clone returns a copy of the reference with its own Extra map.
func (r Reference) Clone() Reference {
	r.Extra = cloneExtra(r.Extra)
	return r
}

// Clone returns a deep copy of the chapter.
func (c Chapter) Clone() Chapter {
	out := c
	out.CharactersInChapter = cloneLinks(c.CharactersInChapter)
	out.LocationsInChapter = cloneLinks(c.LocationsInChapter)
	out.ObjectsInChapter = cloneLinks(c.ObjectsInChapter)
	out.Extra = cloneExtra(c.Extra)
	return out
}

// Clone returns a copy of the choices with fresh pointers.
func (c Choices) Clone() Choices {
	out := c
	out.Genre = clonePtr(c.Genre)
	out.Opening = clonePtr(c.Opening)
	out.Incident = clonePtr(c.Incident)
	out.Extra = cloneExtra(c.Extra)
	return out
}

func cloneLinks(links []LinkID) []LinkID {
	out := make([]LinkID, len(links))
	copy(out, links)
	return out
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	if extra == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

func clonePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Ptr returns a pointer to s, for the nullable choice fields.
func Ptr(s string) *string {
	return &s
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
