package search

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

// FTSEngine implements search using SQLite FTS5.
type FTSEngine struct {
	db *sql.DB
}

// NewFTSEngine creates the index tables in db if needed.
func NewFTSEngine(db *sql.DB) (*FTSEngine, error) {
	e := &FTSEngine{db: db}
	if err := e.initialize(); err != nil {
		if strings.Contains(err.Error(), "no such module") {
			return nil, fmt.Errorf("%w: %v", ErrFTS5Unavailable, err)
		}
		return nil, fmt.Errorf("failed to initialize search index: %w", err)
	}
	return e, nil
}

func (e *FTSEngine) initialize() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
		title,
		content,
		tokenize='porter unicode61'
	);

	CREATE TABLE IF NOT EXISTS entries_meta (
		rowid INTEGER PRIMARY KEY,
		source_type TEXT NOT NULL,
		entity_id INTEGER NOT NULL,
		chapter_index INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		token_count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_meta_type
	ON entries_meta(source_type);

	-- Document version the index was built from
	CREATE TABLE IF NOT EXISTS index_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		fingerprint TEXT NOT NULL
	);
	`
	_, err := e.db.Exec(schema)
	return err
}

// Search performs a full-text search using FTS5 with BM25 scoring.
// The query is sanitized to prevent FTS5 syntax errors.
// Results are returned ordered by relevance score (best matches first).
func (e *FTSEngine) Search(query string, opts SearchOptions) ([]SearchResult, error) {
	sanitizedQuery := sanitizeFTS5Query(query)
	if sanitizedQuery == "" {
		return nil, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.HighlightStart == "" {
		opts.HighlightStart = "["
	}
	if opts.HighlightEnd == "" {
		opts.HighlightEnd = "]"
	}

	rows, err := e.db.Query(`
		SELECT
			entries_fts.title,
			entries_fts.content,
			snippet(entries_fts, 1, ?, ?, '...', 24) as snippet,
			entries_meta.source_type,
			entries_meta.entity_id,
			entries_meta.chapter_index,
			entries_meta.chunk_index,
			entries_meta.token_count,
			bm25(entries_fts) as score
		FROM entries_fts
		JOIN entries_meta ON entries_fts.rowid = entries_meta.rowid
		WHERE entries_fts MATCH ? AND (? = '' OR entries_meta.source_type = ?)
		ORDER BY score
		LIMIT ?`,
		opts.HighlightStart,
		opts.HighlightEnd,
		sanitizedQuery,
		opts.FilterType,
		opts.FilterType,
		opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search query failed: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(
			&r.Entry.Title,
			&r.Entry.Content,
			&r.Snippet,
			&r.Entry.SourceType,
			&r.Entry.EntityID,
			&r.Entry.ChapterIndex,
			&r.Entry.ChunkIndex,
			&r.Entry.TokenCount,
			&r.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating search results: %w", err)
	}

	return results, nil
}

// Replace clears the index and inserts entries in one transaction, recording
// fingerprint as the indexed state.
func (e *FTSEngine) Replace(entries []Entry, fingerprint string) error {
	tx, err := e.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries_fts"); err != nil {
		return fmt.Errorf("failed to clear FTS index: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entries_meta"); err != nil {
		return fmt.Errorf("failed to clear metadata table: %w", err)
	}

	for _, entry := range entries {
		result, err := tx.Exec(
			"INSERT INTO entries_fts (title, content) VALUES (?, ?)",
			entry.Title, entry.Content,
		)
		if err != nil {
			return fmt.Errorf("failed to insert %s into FTS index: %w", entry.Source(), err)
		}

		rowID, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get row ID for %s: %w", entry.Source(), err)
		}

		_, err = tx.Exec(
			`INSERT INTO entries_meta
				(rowid, source_type, entity_id, chapter_index, chunk_index, token_count)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rowID,
			entry.SourceType,
			entry.EntityID,
			entry.ChapterIndex,
			entry.ChunkIndex,
			entry.TokenCount,
		)
		if err != nil {
			return fmt.Errorf("failed to insert metadata for %s: %w", entry.Source(), err)
		}
	}

	if _, err := tx.Exec(
		"INSERT INTO index_state (id, fingerprint) VALUES (1, ?) ON CONFLICT(id) DO UPDATE SET fingerprint = excluded.fingerprint",
		fingerprint,
	); err != nil {
		return fmt.Errorf("failed to record index state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reindex: %w", err)
	}

	return nil
}

// Fingerprint returns the fingerprint recorded by the last Replace.
func (e *FTSEngine) Fingerprint() (string, error) {
	var fp string
	err := e.db.QueryRow("SELECT fingerprint FROM index_state WHERE id = 1").Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return fp, err
}

// Count returns the number of indexed entries, optionally by type.
func (e *FTSEngine) Count(sourceType string) (int64, error) {
	var count int64
	err := e.db.QueryRow(
		"SELECT COUNT(*) FROM entries_meta WHERE (? = '' OR source_type = ?)",
		sourceType, sourceType,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// sanitizeFTS5Query prepares a query string for FTS5 MATCH.
// Words are stripped of FTS5 operators and OR-joined, so any matching
// term ranks an entry.
func sanitizeFTS5Query(query string) string {
	words := strings.Fields(strings.TrimSpace(query))
	if len(words) == 0 {
		return ""
	}

	var sanitized []string
	for _, word := range words {
		cleaned := cleanFTS5Word(word)
		if cleaned == "" {
			continue
		}
		// Bare AND/OR/NOT would be parsed as operators.
		switch cleaned {
		case "AND", "OR", "NOT", "NEAR":
			cleaned = `"` + cleaned + `"`
		}
		sanitized = append(sanitized, cleaned)
	}

	return strings.Join(sanitized, " OR ")
}

// cleanFTS5Word keeps the characters FTS5 accepts in a bareword.
func cleanFTS5Word(word string) string {
	var result strings.Builder
	for _, ch := range word {
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' {
			result.WriteRune(ch)
		}
	}

	return result.String()
}
