package search

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/azyu/novelcraft/internal/novel"
)

// TokenCounter provides token counting operations for chunking content.
type TokenCounter interface {
	Count(text string) int
	Split(text string, chunkSize int, overlap float64) []string
}

// Indexer keeps the FTS index in step with a document.
type Indexer struct {
	engine       *FTSEngine
	counter      TokenCounter
	chunkSize    int
	chunkOverlap float64
}

// DefaultChunkSize is the default number of tokens per chunk.
const DefaultChunkSize = 400

// DefaultChunkOverlap is the default overlap fraction between chunks.
const DefaultChunkOverlap = 0.15

// NewIndexer creates a new indexer with the specified configuration.
func NewIndexer(engine *FTSEngine, counter TokenCounter, chunkSize int, overlap float64) *Indexer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 || overlap >= 1 {
		overlap = DefaultChunkOverlap
	}

	return &Indexer{
		engine:       engine,
		counter:      counter,
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Sync rebuilds the index from doc unless it was already built from an
// identical document. It reports whether a rebuild happened.
func (idx *Indexer) Sync(doc novel.Document) (bool, error) {
	fingerprint, err := Fingerprint(doc)
	if err != nil {
		return false, err
	}

	current, err := idx.engine.Fingerprint()
	if err != nil {
		return false, fmt.Errorf("failed to read index state: %w", err)
	}
	if current == fingerprint {
		return false, nil
	}

	if err := idx.engine.Replace(idx.Entries(doc), fingerprint); err != nil {
		return false, err
	}
	return true, nil
}

// Search runs a query against the index.
func (idx *Indexer) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	return idx.engine.Search(query, opts)
}

// RankReferences returns the ids of the references most relevant to query,
// best first, without duplicates.
func (idx *Indexer) RankReferences(query string, limit int) ([]int64, error) {
	results, err := idx.engine.Search(query, SearchOptions{Limit: limit * 4, FilterType: SourceTypeReference})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{}, len(results))
	var ids []int64
	for _, r := range results {
		if _, ok := seen[r.Entry.EntityID]; ok {
			continue
		}
		seen[r.Entry.EntityID] = struct{}{}
		ids = append(ids, r.Entry.EntityID)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// Entries turns doc into index entries. Long texts are split into
// overlapping chunks.
func (idx *Indexer) Entries(doc novel.Document) []Entry {
	var entries []Entry

	for _, ref := range doc.References {
		entries = append(entries, idx.chunk(Entry{
			SourceType:   SourceTypeReference,
			EntityID:     ref.ID,
			ChapterIndex: -1,
			Title:        ref.Title,
		}, ref.Content)...)
	}

	for i, ch := range doc.Chapters {
		body := ch.Content
		if ch.Summary != "" {
			body = ch.Summary + "\n\n" + body
		}
		entries = append(entries, idx.chunk(Entry{
			SourceType:   SourceTypeChapter,
			ChapterIndex: i,
			Title:        ch.Title,
		}, body)...)
	}

	for _, c := range doc.Characters {
		entries = append(entries, idx.chunk(Entry{
			SourceType:   SourceTypeCharacter,
			EntityID:     c.ID,
			ChapterIndex: -1,
			Title:        c.Name,
		}, joinNonEmpty(c.Role, c.Gender, c.Age, c.Country, c.FaceDescription, c.HairDescription,
			c.ClothingDescription, c.AccessoryDescription, c.Height, c.Weight, c.BodyShape))...)
	}

	for _, l := range doc.Locations {
		entries = append(entries, idx.chunk(Entry{
			SourceType:   SourceTypeLocation,
			EntityID:     l.ID,
			ChapterIndex: -1,
			Title:        l.Name,
		}, l.Description)...)
	}

	for _, o := range doc.Objects {
		entries = append(entries, idx.chunk(Entry{
			SourceType:   SourceTypeObject,
			EntityID:     o.ID,
			ChapterIndex: -1,
			Title:        o.Name,
		}, o.Description)...)
	}

	return entries
}

// chunk splits content and stamps each piece with base's identity. An
// entry with no content is still indexed by its title.
func (idx *Indexer) chunk(base Entry, content string) []Entry {
	pieces := idx.counter.Split(content, idx.chunkSize, idx.chunkOverlap)
	if len(pieces) == 0 {
		pieces = []string{""}
	}

	out := make([]Entry, len(pieces))
	for i, piece := range pieces {
		e := base
		e.Content = piece
		e.ChunkIndex = i
		e.TokenCount = idx.counter.Count(piece)
		out[i] = e
	}
	return out
}

// Fingerprint hashes the serialized document.
func Fingerprint(doc novel.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to serialize document: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8]), nil
}

func joinNonEmpty(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ". ")
}

// ChunkSize returns the current chunk size setting.
func (idx *Indexer) ChunkSize() int {
	return idx.chunkSize
}
