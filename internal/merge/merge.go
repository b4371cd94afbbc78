// Applies granular patches and bulk replacements to datasets.

// Package merge computes the new content of a dataset from its current rows
// and an incoming change.
package merge

import (
	"encoding/json"
	"errors"

	"github.com/maruel/familyhub/internal/storage/records"
)

// Reserved keys.
const (
	// KeyID identifies a record within its dataset.
	KeyID = "id"
	// KeyDeleted marks a patch as a deletion when its value is truthy.
	KeyDeleted = "_deleted"
)

// ErrInvalidJSON is returned by Replace when the value is not valid JSON.
var ErrInvalidJSON = errors.New("invalid JSON")

// Action describes what Apply did.
type Action string

// Actions returned by Apply.
const (
	ActionInserted Action = "inserted"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionNoop     Action = "noop"
)

// Apply merges patch into the record identified by id.
//
// When patch carries a truthy _deleted field, every record with a matching id
// is removed. Otherwise the first matching record gets the patch's fields
// copied over its own, or a new record {id, ...patch} is appended when none
// matches. The id key inside patch is ignored: a record's id never changes.
//
// rows may be modified in place; use the returned slice.
func Apply(rows []*records.Record, id json.RawMessage, patch *records.Record) ([]*records.Record, Action) {
	want, ok := decodeID(id)
	if !ok {
		return rows, ActionNoop
	}
	if IsDeletion(patch) {
		out := rows[:0]
		for _, r := range rows {
			if !matches(r, want) {
				out = append(out, r)
			}
		}
		if len(out) == len(rows) {
			return out, ActionNoop
		}
		// Clear the tail so removed records can be collected.
		clear(rows[len(out):])
		return out, ActionDeleted
	}
	for _, r := range rows {
		if matches(r, want) {
			copyFields(r, patch)
			return rows, ActionUpdated
		}
	}
	r := records.NewRecord()
	r.Set(KeyID, id)
	copyFields(r, patch)
	return append(rows, r), ActionInserted
}

// Replace returns the value to persist for a bulk replacement.
//
// Any JSON value is accepted as is; shape is not checked.
func Replace(value json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(value) {
		return nil, ErrInvalidJSON
	}
	return value, nil
}

// IsDeletion reports whether patch carries a truthy _deleted field.
func IsDeletion(patch *records.Record) bool {
	if patch == nil {
		return false
	}
	v, ok := patch.Get(KeyDeleted)
	return ok && truthy(v)
}

func copyFields(dst, patch *records.Record) {
	if patch == nil {
		return
	}
	for p := patch.Oldest(); p != nil; p = p.Next() {
		if p.Key == KeyID {
			continue
		}
		dst.Set(p.Key, p.Value)
	}
}

// decodeID decodes a raw id into a comparable value. Objects and arrays never
// compare equal to anything.
func decodeID(raw json.RawMessage) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return nil, false
	}
	return v, true
}

func matches(r *records.Record, want any) bool {
	raw, ok := r.Get(KeyID)
	if !ok {
		return false
	}
	got, ok := decodeID(raw)
	return ok && got == want
}

// truthy follows JavaScript truthiness for decoded JSON values.
func truthy(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return true
	}
}
