package checkpoint

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"quill/internal/records"
)

// Path returns the checkpoint log location for a store: "<base>_result<ext>".
func Path(storePath string) string {
	ext := filepath.Ext(storePath)
	return strings.TrimSuffix(storePath, ext) + "_result" + ext
}

// Entry is one record snapshot read back from a checkpoint log.
type Entry struct {
	Key    string
	Fields map[string]string
	// Order lists the field names from the header block the entry was written under.
	Order []string
	Line  int
}

// Every log row starts with a kind cell. A schema row declares the field
// order for the entry rows after it; the kind cell keeps field values from
// ever being mistaken for a header.
const (
	kindSchema = "schema"
	kindEntry  = "entry"
)

// Log is an append-only checkpoint file. Every Append is flushed and fsynced
// before it returns, so an entry either survives a crash whole or is the
// incomplete trailing record that ReadEntries drops.
type Log struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	writer *csv.Writer
	schema records.Schema
}

// OpenForRun opens path for appending and writes a schema row for schema.
// Existing entries are never truncated; an incomplete trailing record left by
// an interrupted write is cut off first so the new schema row parses on its own.
func OpenForRun(path string, schema records.Schema) (*Log, error) {
	if len(schema) == 0 {
		return nil, errors.New("checkpoint: empty schema")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint log: %w", err)
	}
	if err := trimPartialTail(file); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("repair checkpoint log: %w", err)
	}

	l := &Log{
		path:   path,
		file:   file,
		writer: csv.NewWriter(file),
		schema: slices.Clone(schema),
	}
	if err := l.writeRow(kindSchema, l.schema); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("write checkpoint header: %w", err)
	}
	return l, nil
}

// Path returns the log file location.
func (l *Log) Path() string {
	return l.path
}

// Schema returns the field order entries are written under.
func (l *Log) Schema() records.Schema {
	return slices.Clone(l.schema)
}

// Append writes rec under the log schema and syncs it to disk.
func (l *Log) Append(rec records.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return errors.New("checkpoint: log closed")
	}
	if err := l.writeRow(kindEntry, l.schema.Row(rec)); err != nil {
		return fmt.Errorf("append checkpoint entry: %w", err)
	}
	return nil
}

// Extend adds the names missing from the log schema and, when any were
// missing, writes a new schema row so later entries carry them. It returns
// the added names.
func (l *Log) Extend(names ...string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil, errors.New("checkpoint: log closed")
	}
	var added []string
	for _, name := range names {
		if name == "" || l.schema.Contains(name) || slices.Contains(added, name) {
			continue
		}
		added = append(added, name)
	}
	if len(added) == 0 {
		return nil, nil
	}
	schema := append(slices.Clone(l.schema), added...)
	if err := l.writeRow(kindSchema, schema); err != nil {
		return nil, fmt.Errorf("extend checkpoint schema: %w", err)
	}
	l.schema = schema
	return added, nil
}

// Close releases the file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *Log) writeRow(kind string, cells []string) error {
	row := make([]string, 0, len(cells)+1)
	row = append(row, kind)
	row = append(row, cells...)
	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// trimPartialTail truncates file back to the end of its last complete record.
func trimPartialTail(file *os.File) error {
	info, err := file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}
	data := make([]byte, size)
	if _, err := file.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	cut := completeLength(data)
	if cut == size {
		return nil
	}
	if err := file.Truncate(cut); err != nil {
		return err
	}
	return file.Sync()
}

// completeLength returns the length of the longest prefix of data that ends
// on a complete CSV record. A trailing record is incomplete when it lacks its
// line terminator or stops inside a quoted field, which can span lines.
func completeLength(data []byte) int64 {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	size := int64(len(data))
	var complete int64
	for {
		start := reader.InputOffset()
		_, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return complete
		}
		end := reader.InputOffset()
		if end == size && data[size-1] != '\n' {
			return start
		}
		if err == nil {
			complete = end
			continue
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) && end == size {
			// Reached EOF inside the failed record: a torn write.
			return complete
		}
		complete = end
	}
}

// ReadEntries parses every entry in the log at path. Each schema row
// re-declares the field order for the entry rows that follow it, which lets
// the schema grow between and within runs. Unparseable rows, rows of an
// unknown kind, entries whose width does not match their schema, entries
// without a key, and an incomplete trailing record are skipped and counted in
// dropped. A missing log yields no entries.
func ReadEntries(path, keyField string) (entries []Entry, dropped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read checkpoint log: %w", err)
	}
	if len(data) == 0 {
		return nil, 0, nil
	}
	if cut := completeLength(data); cut < int64(len(data)) {
		data = data[:cut]
		dropped++
	}

	reader := csv.NewReader(bufio.NewReader(bytes.NewReader(data)))
	reader.FieldsPerRecord = -1

	var header []string
	keyIdx := -1
	for {
		row, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			var parseErr *csv.ParseError
			if errors.As(readErr, &parseErr) {
				dropped++
				continue
			}
			return nil, 0, fmt.Errorf("parse checkpoint log: %w", readErr)
		}
		kind, cells := row[0], row[1:]
		switch kind {
		case kindSchema:
			header = slices.Clone(cells)
			keyIdx = slices.Index(header, keyField)
			if keyIdx < 0 {
				header = nil
			}
			continue
		case kindEntry:
		default:
			dropped++
			continue
		}
		line, _ := reader.FieldPos(0)
		if header == nil || len(cells) != len(header) {
			dropped++
			continue
		}
		key := cells[keyIdx]
		if key == "" {
			dropped++
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			fields[name] = cells[i]
		}
		entries = append(entries, Entry{Key: key, Fields: fields, Order: header, Line: line})
	}
	return entries, dropped, nil
}
