package store

import "github.com/azyu/novelcraft/internal/novel"

// Action is a document mutation. The set is closed: only the types in this
// file implement it.
type Action interface {
	action()
	// Name identifies the action in logs.
	Name() string
}

type (
	// SetDocument replaces the document with a decoded payload of any known version.
	SetDocument struct{ Raw map[string]any }

	// ResetDocument replaces the document with a fresh factory document.
	ResetDocument struct{}

	// ResetWizardState restores default choices and plot structure.
	ResetWizardState struct{}

	// UpdateChoice sets one story foundation field by its JSON name.
	UpdateChoice struct {
		Key   string
		Value any
	}

	// UpdatePlotStructure sets one blueprint field by its JSON name.
	UpdatePlotStructure struct {
		Key   string
		Value any
	}

	// SetCurrentChapterContent replaces the text of the current chapter.
	SetCurrentChapterContent struct{ Content string }

	// SetCurrentChapterIndex moves the cursor, clamped to the chapter range.
	SetCurrentChapterIndex struct{ Index int }

	// ToggleChapterStatus flips a chapter between draft and final.
	ToggleChapterStatus struct{ Index int }

	// DeleteChapter removes a chapter unless it is the last one.
	DeleteChapter struct{ Index int }

	// AddChapter appends a chapter. The cursor does not move.
	AddChapter struct{ Chapter novel.Chapter }

	// ReplaceFirstChapter overwrites chapter one.
	ReplaceFirstChapter struct{ Chapter novel.Chapter }

	SetChapterPlotPoint struct {
		Index int
		Value string
	}
	SetChapterSummary struct {
		Index int
		Value string
	}
	SetChapterContent struct {
		Index int
		Value string
	}
	SetChapterTitle struct {
		Index int
		Value string
	}

	AddCharacter    struct{ Character novel.Character }
	UpdateCharacter struct {
		Index     int
		Character novel.Character
	}
	DeleteCharacter struct{ Index int }

	AddLocation    struct{ Location novel.Location }
	UpdateLocation struct {
		Index    int
		Location novel.Location
	}
	DeleteLocation struct{ Index int }

	AddObject    struct{ Object novel.Object }
	UpdateObject struct {
		Index  int
		Object novel.Object
	}
	DeleteObject struct{ Index int }

	AddReference    struct{ Reference novel.Reference }
	UpdateReference struct {
		Index     int
		Reference novel.Reference
	}
	DeleteReference struct{ Index int }
)

func (SetDocument) action()              {}
func (ResetDocument) action()            {}
func (ResetWizardState) action()         {}
func (UpdateChoice) action()             {}
func (UpdatePlotStructure) action()      {}
func (SetCurrentChapterContent) action() {}
func (SetCurrentChapterIndex) action()   {}
func (ToggleChapterStatus) action()      {}
func (DeleteChapter) action()            {}
func (AddChapter) action()               {}
func (ReplaceFirstChapter) action()      {}
func (SetChapterPlotPoint) action()      {}
func (SetChapterSummary) action()        {}
func (SetChapterContent) action()        {}
func (SetChapterTitle) action()          {}
func (AddCharacter) action()             {}
func (UpdateCharacter) action()          {}
func (DeleteCharacter) action()          {}
func (AddLocation) action()              {}
func (UpdateLocation) action()           {}
func (DeleteLocation) action()           {}
func (AddObject) action()                {}
func (UpdateObject) action()             {}
func (DeleteObject) action()             {}
func (AddReference) action()             {}
func (UpdateReference) action()          {}
func (DeleteReference) action()          {}

func (SetDocument) Name() string              { return "SET_DOCUMENT" }
func (ResetDocument) Name() string            { return "RESET_DOCUMENT" }
func (ResetWizardState) Name() string         { return "RESET_WIZARD_STATE" }
func (UpdateChoice) Name() string             { return "UPDATE_CHOICE" }
func (UpdatePlotStructure) Name() string      { return "UPDATE_PLOT_STRUCTURE" }
func (SetCurrentChapterContent) Name() string { return "SET_CURRENT_CHAPTER_CONTENT" }
func (SetCurrentChapterIndex) Name() string   { return "SET_CURRENT_CHAPTER_INDEX" }
func (ToggleChapterStatus) Name() string      { return "TOGGLE_CHAPTER_STATUS" }
func (DeleteChapter) Name() string            { return "DELETE_CHAPTER" }
func (AddChapter) Name() string               { return "ADD_CHAPTER" }
func (ReplaceFirstChapter) Name() string      { return "REPLACE_FIRST_CHAPTER" }
func (SetChapterPlotPoint) Name() string      { return "SET_CHAPTER_PLOT_POINT" }
func (SetChapterSummary) Name() string        { return "SET_CHAPTER_SUMMARY" }
func (SetChapterContent) Name() string        { return "SET_CHAPTER_CONTENT" }
func (SetChapterTitle) Name() string          { return "SET_CHAPTER_TITLE" }
func (AddCharacter) Name() string             { return "ADD_CHARACTER" }
func (UpdateCharacter) Name() string          { return "UPDATE_CHARACTER" }
func (DeleteCharacter) Name() string          { return "DELETE_CHARACTER" }
func (AddLocation) Name() string              { return "ADD_LOCATION" }
func (UpdateLocation) Name() string           { return "UPDATE_LOCATION" }
func (DeleteLocation) Name() string           { return "DELETE_LOCATION" }
func (AddObject) Name() string                { return "ADD_OBJECT" }
func (UpdateObject) Name() string             { return "UPDATE_OBJECT" }
func (DeleteObject) Name() string             { return "DELETE_OBJECT" }
func (AddReference) Name() string             { return "ADD_REFERENCE" }
func (UpdateReference) Name() string          { return "UPDATE_REFERENCE" }
func (DeleteReference) Name() string          { return "DELETE_REFERENCE" }
