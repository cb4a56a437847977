// Package schema decodes stored or imported project documents of any known
// shape into the current novel.Document.
//
// Decoding runs in three stages: the payload is parsed into a loosely typed
// map, a chain of migrations rewrites legacy fields it finds there, and the
// result is converted field by field into the strict document type with
// factory defaults filling whatever is missing.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidJSON is returned when the payload is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")

	// ErrNotObject is returned when the payload is valid JSON but not an object.
	ErrNotObject = errors.New("document is not a JSON object")

	// ErrMissingKey is returned when a required top-level key is absent.
	ErrMissingKey = errors.New("required key missing")
)

// RequiredKeys are the top-level keys an imported file must carry.
// Presence is enough; the values may be empty.
var RequiredKeys = []string{"chapters", "characters"}

// Parse decodes data into the loose intermediate form. Numbers are kept as
// json.Number so entity ids survive without float rounding.
func Parse(data []byte) (map[string]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, ErrNotObject
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	return raw, nil
}

// CheckShape verifies that data is a JSON object with every required key.
func CheckShape(data []byte) error {
	if !gjson.ValidBytes(data) {
		return ErrInvalidJSON
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return ErrNotObject
	}
	for _, key := range RequiredKeys {
		if !root.Get(gjson.Escape(key)).Exists() {
			return fmt.Errorf("%w: %q", ErrMissingKey, key)
		}
	}
	return nil
}

// Detect lists the legacy shapes present in data, by migration name.
// It is used for diagnostics before a document is decoded.
func Detect(data []byte) []string {
	var found []string
	if gjson.GetBytes(data, "referencePageContent").Exists() {
		found = append(found, MigrationReferencePage)
	}
	if len(gjson.GetBytes(data, "chapters.#.locationInChapter").Array()) > 0 {
		found = append(found, MigrationLocationSet)
	}
	if len(gjson.GetBytes(data, "chapters.#.referenceText").Array()) > 0 {
		found = append(found, MigrationChapterReferenceText)
	}
	return found
}
