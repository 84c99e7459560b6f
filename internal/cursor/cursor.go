// Package cursor implements the resumable position in a two-level
// category/URL catalog: which category and which URL within it.
package cursor

import "encoding/json"

// Cursor identifies a position in the catalog by category index and
// URL index within that category. Both are zero-based offsets into
// the master category list and the current category's URL list.
type Cursor struct {
	CategoryIndex int `json:"word_id_offset"`
	URLIndex      int `json:"url_offset"`
}

// Null is the sentinel meaning "before the first item". It compares
// less than every real position.
var Null = Cursor{CategoryIndex: -1, URLIndex: -1}

// Less reports whether c precedes other in catalog order.
func (c Cursor) Less(other Cursor) bool {
	if c.CategoryIndex != other.CategoryIndex {
		return c.CategoryIndex < other.CategoryIndex
	}
	return c.URLIndex < other.URLIndex
}

// AdvanceURL returns the position of the next URL within the same category.
func (c Cursor) AdvanceURL() Cursor {
	return Cursor{CategoryIndex: c.CategoryIndex, URLIndex: c.URLIndex + 1}
}

// AdvanceCategory returns the position of the first URL of the next category.
func (c Cursor) AdvanceCategory() Cursor {
	return Cursor{CategoryIndex: c.CategoryIndex + 1, URLIndex: 0}
}

// Encode renders c as the JSON document persisted in AppState's
// internal_state.iterator_position_json field.
func (c Cursor) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Decode parses a cursor previously produced by Encode. An empty
// string decodes to Null, matching a freshly reset AppState.
func Decode(s string) (Cursor, error) {
	if s == "" {
		return Null, nil
	}
	var c Cursor
	if err := json.Unmarshal([]byte(s), &c); err != nil {
		return Null, err
	}
	return c, nil
}
