package runstore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"quill/internal/runstore"
)

func openStore(t *testing.T) *runstore.Store {
	t.Helper()
	store, err := runstore.Open(filepath.Join(t.TempDir(), "state", "runs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBeginFinishAndList(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := store.Begin(ctx, runstore.Run{ID: "run-a", Stage: "fetch", StorePath: "/data/a.csv", StartedAt: start}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if err := store.Begin(ctx, runstore.Run{ID: "run-b", Stage: "tag", StorePath: "/data/a.csv", StartedAt: start.Add(time.Minute)}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}

	finished := start.Add(30 * time.Second)
	err := store.Finish(ctx, runstore.Run{
		ID:         "run-a",
		State:      runstore.StateInterrupted,
		FinishedAt: &finished,
		Total:      10,
		Skipped:    4,
		Processed:  6,
		Succeeded:  5,
		Failed:     1,
		Retried:    2,
		Dropped:    1,
		Error:      "context canceled",
	})
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	runs, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Fatalf("expected newest first, got %s then %s", runs[0].ID, runs[1].ID)
	}
	if runs[0].State != runstore.StateRunning || runs[0].FinishedAt != nil {
		t.Fatalf("unfinished run should remain running: %+v", runs[0])
	}

	got := runs[1]
	if got.State != runstore.StateInterrupted || got.Total != 10 || got.Succeeded != 5 || got.Dropped != 1 {
		t.Fatalf("unexpected finished run: %+v", got)
	}
	if got.Duration() != 30*time.Second {
		t.Fatalf("unexpected duration %s", got.Duration())
	}
	if got.Error != "context canceled" {
		t.Fatalf("unexpected error message %q", got.Error)
	}

	limited, err := store.List(ctx, 1)
	if err != nil {
		t.Fatalf("List with limit failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := openStore(t)
	err := store.Finish(context.Background(), runstore.Run{ID: "missing"})
	if !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(context.Background(), "missing"); !errors.Is(err, runstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from Get, got %v", err)
	}
}

func TestBeginRequiresID(t *testing.T) {
	store := openStore(t)
	if err := store.Begin(context.Background(), runstore.Run{Stage: "fetch"}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestReopenKeepsHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	store, err := runstore.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Begin(context.Background(), runstore.Run{ID: "r1", Stage: "fetch", StorePath: "x.csv"}); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	_ = store.Close()

	reopened, err := runstore.Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	run, err := reopened.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if run.Stage != "fetch" {
		t.Fatalf("unexpected run %+v", run)
	}
}
