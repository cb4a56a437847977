package novel

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// LinkID identifies an entity linked from a chapter. Current documents link by
// numeric id; documents migrated from the single-location shape may link a
// location by its name instead.
type LinkID struct {
	ID   int64
	Name string
}

// IDLink links by entity id.
func IDLink(id int64) LinkID {
	return LinkID{ID: id}
}

// NameLink links by entity name.
func NameLink(name string) LinkID {
	return LinkID{Name: name}
}

// IDLinks converts ids to links.
func IDLinks(ids ...int64) []LinkID {
	links := make([]LinkID, 0, len(ids))
	for _, id := range ids {
		links = append(links, IDLink(id))
	}
	return links
}

// IsName reports whether the link refers to an entity by name.
func (l LinkID) IsName() bool {
	return l.Name != ""
}

// String implements fmt.Stringer.
func (l LinkID) String() string {
	if l.IsName() {
		return l.Name
	}
	return strconv.FormatInt(l.ID, 10)
}

// MarshalJSON encodes the link as a JSON number or string.
func (l LinkID) MarshalJSON() ([]byte, error) {
	if l.IsName() {
		return json.Marshal(l.Name)
	}
	return []byte(strconv.FormatInt(l.ID, 10)), nil
}

// UnmarshalJSON accepts a JSON number or a non-empty string.
func (l *LinkID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name == "" {
			return errors.New("invalid link id: empty name")
		}
		*l = NameLink(name)
		return nil
	}

	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return fmt.Errorf("invalid link id %s: %w", data, err)
	}
	id, err := num.Int64()
	if err != nil {
		f, ferr := num.Float64()
		if ferr != nil {
			return fmt.Errorf("invalid link id %s: %w", data, err)
		}
		id = int64(f)
	}
	*l = IDLink(id)
	return nil
}

// ContainsID reports whether links contains a link to id.
func ContainsID(links []LinkID, id int64) bool {
	for _, l := range links {
		if !l.IsName() && l.ID == id {
			return true
		}
	}
	return false
}
