// Package search provides full-text search over a novel project's
// references, chapters and story assets.
package search

import (
	"errors"
	"strconv"
)

// Common errors returned by search operations.
var (
	// ErrIndexCorrupted is returned when the search index is in an invalid state.
	ErrIndexCorrupted = errors.New("search index corrupted")

	// ErrFTS5Unavailable is returned when the SQLite build lacks FTS5.
	ErrFTS5Unavailable = errors.New("sqlite fts5 module unavailable")
)

// SourceType constants for entry categorization.
const (
	SourceTypeReference = "reference"
	SourceTypeChapter   = "chapter"
	SourceTypeCharacter = "character"
	SourceTypeLocation  = "location"
	SourceTypeObject    = "object"
)

// SearchOptions configures search behavior.
type SearchOptions struct {
	// Limit is the maximum number of results to return.
	// If 0, a default limit is applied.
	Limit int

	// FilterType restricts results to a specific source type.
	// Empty string matches all types.
	FilterType string

	// Highlight wraps matched terms in snippets with these markers.
	HighlightStart string
	HighlightEnd   string
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit:          20,
		HighlightStart: "[",
		HighlightEnd:   "]",
	}
}

// WithLimit returns a copy of the options with the specified limit.
func (o SearchOptions) WithLimit(limit int) SearchOptions {
	o.Limit = limit
	return o
}

// WithFilterType returns a copy of the options with the specified filter type.
func (o SearchOptions) WithFilterType(filterType string) SearchOptions {
	o.FilterType = filterType
	return o
}

// IsValidSourceType returns true if the given type is a valid source type.
func IsValidSourceType(sourceType string) bool {
	switch sourceType {
	case SourceTypeReference, SourceTypeChapter, SourceTypeCharacter, SourceTypeLocation, SourceTypeObject, "":
		return true
	default:
		return false
	}
}

// Entry is one indexed chunk of project content.
type Entry struct {
	SourceType string
	// EntityID is set for references and assets.
	EntityID int64
	// ChapterIndex is set for chapters, and -1 otherwise.
	ChapterIndex int
	Title        string
	Content      string
	ChunkIndex   int
	TokenCount   int
}

// Source identifies the origin of an entry for display.
func (e Entry) Source() string {
	if e.SourceType == SourceTypeChapter {
		return "chapter " + strconv.Itoa(e.ChapterIndex+1)
	}
	return e.SourceType + " " + strconv.FormatInt(e.EntityID, 10)
}

// SearchResult represents a single search result with relevance information.
type SearchResult struct {
	Entry Entry

	// Score is the bm25 rank. Lower is better.
	Score float64

	// Snippet is a fragment of the content with matches marked.
	Snippet string
}
