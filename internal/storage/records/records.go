// Reads and writes datasets as pretty-printed JSON arrays.

// Package records implements the on-disk store for datasets.
//
// Each dataset is a single file holding a JSON array of objects. The whole
// file is read on every load and rewritten on every save; writes go through a
// temporary file renamed over the target so readers never observe a partial
// file.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ErrCorruptData is returned when a dataset file exists but is not a JSON
// array of objects.
var ErrCorruptData = errors.New("corrupt data")

// Record is a single JSON object. Key order is preserved across load and save.
type Record = orderedmap.OrderedMap[string, json.RawMessage]

// NewRecord returns an empty Record.
func NewRecord() *Record {
	return orderedmap.New[string, json.RawMessage]()
}

// Load reads the dataset at path.
//
// A missing file is an empty dataset.
func Load(path string) ([]*Record, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the dataset allow-list
	if err != nil {
		if os.IsNotExist(err) {
			return []*Record{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: %s is not a JSON array", ErrCorruptData, filepath.Base(path))
	}
	var rows []*Record
	if err := json.Unmarshal(trimmed, &rows); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptData, filepath.Base(path), err)
	}
	for i, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("%w: %s: element %d is null", ErrCorruptData, filepath.Base(path), i)
		}
	}
	if rows == nil {
		rows = []*Record{}
	}
	return rows, nil
}

// Save replaces the dataset at path with rows.
func Save(path string, rows []*Record) error {
	if rows == nil {
		rows = []*Record{}
	}
	data, err := marshalRows(rows)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

// marshalRows encodes rows as an indented JSON array.
//
// Values are written back byte for byte before indenting, so strings keep
// their original escaping and untouched records round trip unchanged.
func marshalRows(rows []*Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	buf.WriteByte('[')
	for i, r := range rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		first := true
		for p := r.Oldest(); p != nil; p = p.Next() {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			if err := enc.Encode(p.Key); err != nil {
				return nil, err
			}
			buf.WriteByte(':')
			if len(p.Value) == 0 {
				buf.WriteString("null")
			} else {
				buf.Write(p.Value)
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// SaveRaw replaces the dataset at path with an arbitrary JSON value.
//
// The value is not required to be an array. Loading a file written with a
// non-array value fails with ErrCorruptData.
func SaveRaw(path string, value json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, value, "", "  "); err != nil {
		return fmt.Errorf("invalid JSON for %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, buf.Bytes())
}

// writeFile writes data followed by a newline to a temporary file next to
// path, then renames it over path.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: 0o755 is intentional for data directories
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		_ = os.Remove(tmp)
	}()
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if _, err := f.WriteString("\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil { //nolint:gosec // G302: dataset files are meant to be readable by the sync script
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
