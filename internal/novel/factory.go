package novel

import (
	"sync"
	"time"
)

// Default template values for new records.
const (
	DefaultChapterTitle   = "Chapter 1"
	NewCharacterName      = "New Character"
	NewLocationName       = "New Location"
	NewObjectName         = "New Object"
	NewReferenceTitle     = "New Reference"
	ImportedReferenceName = "Imported Reference"

	DefaultTotalChapters   = 10
	DefaultConflictChapter = 3
	DefaultClimaxChapter   = 8
)

// IDSource hands out entity ids derived from a millisecond clock.
// Ids are strictly increasing even when the clock stalls or steps back.
type IDSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDSource creates an id source reading the given clock.
func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

// Next returns a fresh id.
func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// Observe makes sure future ids are greater than id. Loaded documents carry
// ids from earlier sessions, possibly minted by a clock that ran ahead.
func (s *IDSource) Observe(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id > s.last {
		s.last = id
	}
}

// NewCharacter returns a character template with a fresh id.
func (s *IDSource) NewCharacter() Character {
	return Character{
		ID:   s.Next(),
		Name: NewCharacterName,
		Role: RoleUnset,
	}
}

// NewLocation returns a location template with a fresh id.
func (s *IDSource) NewLocation() Location {
	return Location{ID: s.Next(), Name: NewLocationName}
}

// NewObject returns an object template with a fresh id.
func (s *IDSource) NewObject() Object {
	return Object{ID: s.Next(), Name: NewObjectName}
}

// NewReference returns a reference template with a fresh id.
func (s *IDSource) NewReference() Reference {
	return Reference{ID: s.Next(), Title: NewReferenceTitle}
}

// Default is the process-wide id source.
var Default = NewIDSource(time.Now)

// NewCharacter returns a character template from the default id source.
func NewCharacter() Character { return Default.NewCharacter() }

// NewLocation returns a location template from the default id source.
func NewLocation() Location { return Default.NewLocation() }

// NewObject returns an object template from the default id source.
func NewObject() Object { return Default.NewObject() }

// NewReference returns a reference template from the default id source.
func NewReference() Reference { return Default.NewReference() }

// NewChapter returns an empty draft chapter with empty link sets.
func NewChapter(title string) Chapter {
	return Chapter{
		Title:               title,
		CharactersInChapter: []LinkID{},
		LocationsInChapter:  []LinkID{},
		ObjectsInChapter:    []LinkID{},
		Status:              StatusDraft,
		PlotPoint:           PlotPointUnset,
	}
}

// DefaultChoices returns the story foundation of a new project.
func DefaultChoices() Choices {
	return Choices{
		WritingStyle: DefaultWritingStyle,
	}
}

// DefaultPlotStructure returns the chapter blueprint of a new project.
func DefaultPlotStructure() PlotStructure {
	return PlotStructure{
		TotalChapters:   DefaultTotalChapters,
		ConflictChapter: DefaultConflictChapter,
		ClimaxChapter:   DefaultClimaxChapter,
	}
}

// NewDocument returns a fresh project with a single seed chapter.
// Every call allocates new slices, so documents never share state.
func NewDocument() Document {
	seed := NewChapter(DefaultChapterTitle)
	seed.PlotPoint = PlotPointIntroduction

	return Document{
		Characters:          []Character{},
		Locations:           []Location{},
		Objects:             []Object{},
		References:          []Reference{},
		Chapters:            []Chapter{seed},
		CurrentChapterIndex: 0,
		Choices:             DefaultChoices(),
		PlotStructure:       DefaultPlotStructure(),
	}
}
