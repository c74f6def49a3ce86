package checkpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"quill/internal/checkpoint"
	"quill/internal/logging"
	"quill/internal/records"
	"quill/internal/services"
)

const keyField = "article_url"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

func TestPath(t *testing.T) {
	cases := map[string]string{
		"/data/articles.csv": "/data/articles_result.csv",
		"articles.tsv":       "articles_result.tsv",
		"/data/noext":        "/data/noext_result",
	}
	for in, want := range cases {
		if got := checkpoint.Path(in); got != want {
			t.Fatalf("Path(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAppendAndReadEntries(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")

	log, err := checkpoint.OpenForRun(logPath, records.Schema{keyField, "category"})
	if err != nil {
		t.Fatalf("OpenForRun: %v", err)
	}
	if err := log.Append(records.Record{keyField: "u1", "category": "science"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append(records.Record{keyField: "u2", "category": "Failed, again"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A second run with a wider schema appends its own header block.
	log, err = checkpoint.OpenForRun(logPath, records.Schema{keyField, "category", "keywords"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := log.Append(records.Record{keyField: "u1", "category": "culture", "keywords": `["a","b"]`}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = log.Close()

	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("expected no dropped entries, got %d", dropped)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[1].Fields["category"] != "Failed, again" {
		t.Fatalf("quoted value lost: %q", entries[1].Fields["category"])
	}
	if entries[2].Fields["keywords"] != `["a","b"]` {
		t.Fatalf("unexpected keywords %q", entries[2].Fields["keywords"])
	}
	if _, ok := entries[0].Fields["keywords"]; ok {
		t.Fatal("first block should not define keywords")
	}
}

func TestReadEntriesDropsTruncatedTail(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	writeFile(t, logPath, "schema,article_url,category\nentry,u1,science\nentry,u2,cult")

	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "u1" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if dropped != 1 {
		t.Fatalf("expected 1 dropped entry, got %d", dropped)
	}
}

func TestReadEntriesDropsBadRows(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	writeFile(t, logPath, "schema,article_url,category\nentry,u1\nentry,,science\nentry,u2,\"unterminated\n")

	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %+v", entries)
	}
	if dropped != 3 {
		t.Fatalf("expected 3 dropped rows, got %d", dropped)
	}
}

func TestReadEntriesMissingFile(t *testing.T) {
	entries, dropped, err := checkpoint.ReadEntries(filepath.Join(t.TempDir(), "none.csv"), keyField)
	if err != nil || len(entries) != 0 || dropped != 0 {
		t.Fatalf("expected empty result, got %v %d %v", entries, dropped, err)
	}
}

func TestOpenForRunTrimsPartialLine(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	writeFile(t, logPath, "schema,article_url,category\nentry,u1,science\nentry,u2,cul")

	log, err := checkpoint.OpenForRun(logPath, records.Schema{keyField, "category"})
	if err != nil {
		t.Fatalf("OpenForRun: %v", err)
	}
	_ = log.Close()

	want := "schema,article_url,category\nentry,u1,science\nschema,article_url,category\n"
	if got := readFile(t, logPath); got != want {
		t.Fatalf("unexpected log content %q", got)
	}
}

func TestMergeLastWriteWinsAndTruncates(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "a.csv")
	logPath := checkpoint.Path(store)
	writeFile(t, store, "article_url,title\nu1,One\nu2,Two\nu3,Three\n")
	writeFile(t, logPath, "schema,article_url,title,category\n"+
		"entry,u1,One,science\n"+
		"entry,u2,Two,Failed\n"+
		"entry,u2,Two,culture\n"+
		"entry,u9,Nine,ghost\n")

	result, err := checkpoint.Merge(context.Background(), store, logPath, keyField, logging.NewNop())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if result.Entries != 4 || result.Applied != 2 || result.Orphaned != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if strings.Join(result.AddedFields, ",") != "category" {
		t.Fatalf("unexpected added fields %v", result.AddedFields)
	}

	want := "article_url,title,category\nu1,One,science\nu2,Two,culture\nu3,Three,\n"
	if got := readFile(t, store); got != want {
		t.Fatalf("unexpected store:\n%s\nwant:\n%s", got, want)
	}
	if got := readFile(t, logPath); got != "" {
		t.Fatalf("expected truncated log, got %q", got)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "a.csv")
	logPath := checkpoint.Path(store)
	logContent := "schema,article_url,title,category\nentry,u1,One,science\n"
	writeFile(t, store, "article_url,title\nu1,One\nu2,Two\n")
	writeFile(t, logPath, logContent)

	ctx := context.Background()
	if _, err := checkpoint.Merge(ctx, store, logPath, keyField, nil); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	first := readFile(t, store)

	// Simulate a crash after the store rewrite but before truncation.
	writeFile(t, logPath, logContent)
	if _, err := checkpoint.Merge(ctx, store, logPath, keyField, nil); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	if second := readFile(t, store); second != first {
		t.Fatalf("merge not idempotent:\nfirst:\n%s\nsecond:\n%s", first, second)
	}

	result, err := checkpoint.Merge(ctx, store, logPath, keyField, nil)
	if err != nil {
		t.Fatalf("third merge: %v", err)
	}
	if !result.Skipped {
		t.Fatal("expected empty log to skip")
	}
	if third := readFile(t, store); third != first {
		t.Fatal("empty merge must not alter the store")
	}
}

func TestMergeSkipsMalformedTail(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "a.csv")
	logPath := checkpoint.Path(store)
	writeFile(t, store, "article_url,title\nu1,One\nu2,Two\n")
	writeFile(t, logPath, "schema,article_url,title,category\nentry,u1,One,science\nentry,u2,Two,cul")

	result, err := checkpoint.Merge(context.Background(), store, logPath, keyField, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if result.Dropped != 1 || result.Applied != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	want := "article_url,title,category\nu1,One,science\nu2,Two,\n"
	if got := readFile(t, store); got != want {
		t.Fatalf("unexpected store %q", got)
	}
}

func TestMergeWithoutLogIsNoop(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "a.csv")
	content := "article_url,title\nu1,One\n"
	writeFile(t, store, content)

	result, err := checkpoint.Merge(context.Background(), store, checkpoint.Path(store), keyField, nil)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !result.Skipped {
		t.Fatalf("expected skip, got %+v", result)
	}
	if got := readFile(t, store); got != content {
		t.Fatalf("store changed: %q", got)
	}
	if _, err := os.Stat(checkpoint.Path(store)); !os.IsNotExist(err) {
		t.Fatalf("merge should not create a log, stat err=%v", err)
	}
}

func TestMergeMissingStoreIsFatal(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "missing.csv")
	writeFile(t, checkpoint.Path(store), "schema,article_url,category\nentry,u1,science\n")

	_, err := checkpoint.Merge(context.Background(), store, checkpoint.Path(store), keyField, nil)
	if !errors.Is(err, services.ErrMalformedSource) {
		t.Fatalf("expected malformed source, got %v", err)
	}
	if got := readFile(t, checkpoint.Path(store)); got == "" {
		t.Fatal("log must be preserved when the store cannot be loaded")
	}
}

func TestReadEntriesKeepsValuesNamedLikeColumns(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	log, err := checkpoint.OpenForRun(logPath, records.Schema{keyField, "title", "category"})
	if err != nil {
		t.Fatalf("OpenForRun: %v", err)
	}
	for _, rec := range []records.Record{
		{keyField: "u1", "title": "One", "category": keyField},
		{keyField: "u2", "title": "schema", "category": "science"},
		{keyField: "u3", "title": "Three", "category": "culture"},
	} {
		if err := log.Append(rec); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	_ = log.Close()

	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if dropped != 0 || len(entries) != 3 {
		t.Fatalf("expected 3 entries and no drops, got %d entries, %d dropped", len(entries), dropped)
	}
	if entries[0].Key != "u1" || entries[0].Fields["category"] != keyField {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[2].Key != "u3" || entries[2].Fields["category"] != "culture" {
		t.Fatalf("unexpected last entry %+v", entries[2])
	}
}

func TestExtendWritesNewSchemaRow(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	log, err := checkpoint.OpenForRun(logPath, records.Schema{keyField, "category"})
	if err != nil {
		t.Fatalf("OpenForRun: %v", err)
	}
	if err := log.Append(records.Record{keyField: "u1", "category": "science"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	added, err := log.Extend("category", "summary", "summary")
	if err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if strings.Join(added, ",") != "summary" {
		t.Fatalf("unexpected added fields %v", added)
	}
	if added, _ := log.Extend("summary"); len(added) != 0 {
		t.Fatalf("known fields must not be re-added, got %v", added)
	}
	if err := log.Append(records.Record{keyField: "u2", "category": "culture", "summary": "short"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = log.Close()

	want := "schema,article_url,category\nentry,u1,science\nschema,article_url,category,summary\nentry,u2,culture,short\n"
	if got := readFile(t, logPath); got != want {
		t.Fatalf("unexpected log content %q", got)
	}
	entries, _, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil || len(entries) != 2 || entries[1].Fields["summary"] != "short" {
		t.Fatalf("unexpected entries %+v, %v", entries, err)
	}
}

func TestOpenForRunTrimsTornQuotedField(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	// The second entry was cut inside a multi-line quoted value.
	writeFile(t, logPath, "schema,article_url,title\nentry,u1,One\nentry,u2,\"first line\n")

	log, err := checkpoint.OpenForRun(logPath, records.Schema{keyField, "title"})
	if err != nil {
		t.Fatalf("OpenForRun: %v", err)
	}
	if err := log.Append(records.Record{keyField: "u3", "title": "Three\nlines"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	_ = log.Close()

	want := "schema,article_url,title\nentry,u1,One\nschema,article_url,title\nentry,u3,\"Three\nlines\"\n"
	if got := readFile(t, logPath); got != want {
		t.Fatalf("unexpected log content %q", got)
	}
	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil || dropped != 0 || len(entries) != 2 || entries[1].Fields["title"] != "Three\nlines" {
		t.Fatalf("unexpected read: %+v, dropped=%d, err=%v", entries, dropped, err)
	}
}

func TestReadEntriesDropsTornQuotedField(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "a_result.csv")
	writeFile(t, logPath, "schema,article_url,title\nentry,u1,One\nentry,u2,\"first line\nsecond\n")

	entries, dropped, err := checkpoint.ReadEntries(logPath, keyField)
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].Key != "u1" || dropped != 1 {
		t.Fatalf("unexpected result %+v, dropped=%d", entries, dropped)
	}
}
