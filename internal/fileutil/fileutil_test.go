package fileutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.csv")

	if err := os.WriteFile(dst, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(dst, []byte("new content"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "new content" {
		t.Fatalf("content mismatch: got %q", got)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteAtomicKeepsOriginalOnError(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "store.csv")

	if err := os.WriteFile(dst, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	err := WriteAtomic(dst, 0o644, func(w io.Writer) error {
		if _, err := w.Write([]byte("partial")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected writer error, got %v", err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "original" {
		t.Fatalf("original file modified: %q", got)
	}
	assertNoTempFiles(t, dir)
}

func TestWriteAtomicAppliesMode(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "out.txt")
	if err := WriteFileAtomic(dst, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("unexpected mode %o", info.Mode().Perm())
	}
}

func TestWriteAtomic_MissingDirectory(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "nope", "dst")
	if err := WriteFileAtomic(dst, []byte("x"), 0o644); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestWriteAtomicReportsDirectorySyncFailure(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dst.csv")
	syncErr := errors.New("disk gone")
	stubSyncDir(t, func(string) error { return syncErr })

	err := WriteFileAtomic(dst, []byte("x"), 0o644)
	if !errors.Is(err, syncErr) {
		t.Fatalf("expected directory sync error, got %v", err)
	}
}

func TestWriteAtomicToleratesUnsupportedDirectorySync(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "dst.csv")
	stubSyncDir(t, func(dir string) error {
		return &os.PathError{Op: "sync", Path: dir, Err: syscall.EINVAL}
	})

	if err := WriteFileAtomic(dst, []byte("x"), 0o644); err != nil {
		t.Fatalf("unsupported directory sync should be ignored: %v", err)
	}
	if got, _ := os.ReadFile(dst); string(got) != "x" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestSyncDirMissing(t *testing.T) {
	if err := SyncDir(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func stubSyncDir(t *testing.T, fn func(string) error) {
	t.Helper()
	orig := syncDir
	syncDir = fn
	t.Cleanup(func() { syncDir = orig })
}

func TestTruncate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.csv")
	if err := os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Truncate(path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() != 0 {
		t.Fatalf("expected empty file, got %d bytes", info.Size())
	}
	if err := Truncate(filepath.Join(dir, "missing")); err != nil {
		t.Fatalf("missing file should be ignored: %v", err)
	}
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".csv" && filepath.Ext(e.Name()) != ".txt" {
			t.Fatalf("unexpected leftover file %q", e.Name())
		}
	}
}
