package records

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"quill/internal/fileutil"
	"quill/internal/services"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Record maps field names to string values. Missing fields read as "".
type Record map[string]string

// Get returns the value stored under field, or "" when absent.
func (r Record) Get(field string) string {
	return r[field]
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Schema is the ordered list of field names. It only ever grows.
type Schema []string

// Contains reports whether the schema defines field.
func (s Schema) Contains(field string) bool {
	return slices.Contains(s, field)
}

// Row renders rec as CSV cells in schema order.
func (s Schema) Row(rec Record) []string {
	row := make([]string, len(s))
	for i, field := range s {
		row[i] = rec.Get(field)
	}
	return row
}

// MalformedSourceError reports a store that cannot be loaded. It matches
// services.ErrMalformedSource with errors.Is.
type MalformedSourceError struct {
	Path   string
	Reason string
	Err    error
}

func (e *MalformedSourceError) Error() string {
	msg := fmt.Sprintf("malformed source %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedSourceError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrMalformedSource}
	}
	return []error{services.ErrMalformedSource, e.Err}
}

func malformed(path, reason string, err error) error {
	return &MalformedSourceError{Path: path, Reason: reason, Err: err}
}

// RecordSet is an ordered collection of records with unique keys.
type RecordSet struct {
	keyField string
	schema   Schema
	records  []Record
	index    map[string]int
}

// New returns an empty record set. The key field is always part of the schema.
func New(keyField string, fields ...string) *RecordSet {
	rs := &RecordSet{keyField: keyField, index: make(map[string]int)}
	rs.EnsureFields(keyField)
	rs.EnsureFields(fields...)
	return rs
}

// Load reads a CSV store keyed by keyField. A leading UTF-8 BOM is ignored and
// rows shorter than the header are padded with empty values.
func Load(path, keyField string) (*RecordSet, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, malformed(path, "file does not exist", nil)
		}
		return nil, malformed(path, "open failed", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	if prefix, err := reader.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = reader.Discard(len(utf8BOM))
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, malformed(path, "file is empty", nil)
		}
		return nil, malformed(path, "read header", err)
	}

	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return nil, malformed(path, fmt.Sprintf("duplicate column %q", name), nil)
		}
		seen[name] = struct{}{}
	}
	keyIdx := slices.Index(header, keyField)
	if keyIdx < 0 {
		return nil, malformed(path, fmt.Sprintf("missing key column %q", keyField), nil)
	}

	rs := &RecordSet{keyField: keyField, index: make(map[string]int)}
	rs.schema = append(Schema(nil), header...)

	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed(path, "read row", err)
		}
		line, _ := csvReader.FieldPos(0)
		if len(row) > len(header) {
			return nil, malformed(path, fmt.Sprintf("line %d has %d fields, header has %d", line, len(row), len(header)), nil)
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		key := rec[keyField]
		if key == "" {
			return nil, malformed(path, fmt.Sprintf("line %d has an empty %s", line, keyField), nil)
		}
		if _, dup := rs.index[key]; dup {
			return nil, malformed(path, fmt.Sprintf("duplicate key %q on line %d", key, line), nil)
		}
		rs.index[key] = len(rs.records)
		rs.records = append(rs.records, rec)
	}

	return rs, nil
}

// KeyField returns the name of the key column.
func (rs *RecordSet) KeyField() string {
	return rs.keyField
}

// Schema returns a copy of the current field order.
func (rs *RecordSet) Schema() Schema {
	return slices.Clone(rs.schema)
}

// Len returns the number of records.
func (rs *RecordSet) Len() int {
	return len(rs.records)
}

// EnsureFields appends any names not yet in the schema, preserving the order
// given. Existing records read the new fields as "".
func (rs *RecordSet) EnsureFields(names ...string) []string {
	var added []string
	for _, name := range names {
		if name == "" || rs.schema.Contains(name) {
			continue
		}
		rs.schema = append(rs.schema, name)
		added = append(added, name)
	}
	return added
}

// Add appends a record. The key must be non-empty and unused.
func (rs *RecordSet) Add(rec Record) error {
	key := rec.Get(rs.keyField)
	if key == "" {
		return fmt.Errorf("record has no %s", rs.keyField)
	}
	if _, dup := rs.index[key]; dup {
		return fmt.Errorf("duplicate key %q", key)
	}
	names := make([]string, 0, len(rec))
	for name := range rec {
		names = append(names, name)
	}
	slices.Sort(names)
	rs.EnsureFields(names...)
	rs.index[key] = len(rs.records)
	rs.records = append(rs.records, rec.Clone())
	return nil
}

// Lookup returns a copy of the record stored under key.
func (rs *RecordSet) Lookup(key string) (Record, bool) {
	idx, ok := rs.index[key]
	if !ok {
		return nil, false
	}
	return rs.records[idx].Clone(), true
}

// Records returns copies of all records in store order.
func (rs *RecordSet) Records() []Record {
	out := make([]Record, len(rs.records))
	for i, rec := range rs.records {
		out[i] = rec.Clone()
	}
	return out
}

// Apply overwrites the given fields on the record stored under key, growing
// the schema for unknown names in the order provided by names. The key field
// itself is never rewritten. It reports false when no record has that key.
func (rs *RecordSet) Apply(key string, fields map[string]string, names []string) bool {
	idx, ok := rs.index[key]
	if !ok {
		return false
	}
	if names == nil {
		for name := range fields {
			names = append(names, name)
		}
		slices.Sort(names)
	}
	rs.EnsureFields(names...)
	rec := rs.records[idx]
	for name, value := range fields {
		if name == rs.keyField {
			continue
		}
		rec[name] = value
	}
	return true
}

// Write replaces path with the header and every record in store order.
func (rs *RecordSet) Write(path string) error {
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(rs.schema); err != nil {
			return err
		}
		for _, rec := range rs.records {
			if err := cw.Write(rs.schema.Row(rec)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("write store %s: %w", path, err)
	}
	return nil
}
