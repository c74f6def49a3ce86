package checkpoint

import (
	"context"
	"log/slog"
	"os"

	"quill/internal/fileutil"
	"quill/internal/logging"
	"quill/internal/records"
)

// MergeResult summarizes a merge pass.
type MergeResult struct {
	// Entries is the number of well-formed entries read from the log.
	Entries int
	// Applied is the number of distinct store records updated.
	Applied int
	// Orphaned counts distinct keys in the log that the store does not contain.
	Orphaned int
	// Dropped counts malformed log lines that were skipped.
	Dropped int
	// AddedFields lists columns introduced into the store schema.
	AddedFields []string
	// Skipped is true when the log held nothing to apply.
	Skipped bool
}

// Merge folds the checkpoint log at logPath into the store at storePath and
// empties the log. Later entries for a key win over earlier ones. The store is
// replaced atomically before the log is truncated, so a crash between the two
// steps leaves a log whose re-application produces the same store.
func Merge(ctx context.Context, storePath, logPath, keyField string, logger *slog.Logger) (MergeResult, error) {
	logger = logging.NewComponentLogger(logger, "checkpoint")
	var result MergeResult
	if err := ctx.Err(); err != nil {
		return result, err
	}

	entries, dropped, err := ReadEntries(logPath, keyField)
	if err != nil {
		return result, err
	}
	result.Entries = len(entries)
	result.Dropped = dropped
	if dropped > 0 {
		logging.WarnWithContext(logger, "checkpoint log contained malformed entries", "checkpoint_partial_entry",
			logging.String("log", logPath),
			logging.Int("dropped", dropped),
			logging.Hint("an interrupted write was discarded; affected records will be reprocessed"),
			logging.String(logging.FieldImpact, "dropped entries are not merged"),
		)
	}

	if len(entries) == 0 {
		result.Skipped = true
		if err := truncateIfNonEmpty(logPath); err != nil {
			return result, err
		}
		logger.Debug("checkpoint merge skipped",
			logging.Event("merge_skipped"),
			logging.String("store", storePath),
		)
		return result, nil
	}

	store, err := records.Load(storePath, keyField)
	if err != nil {
		return result, err
	}

	latest := make(map[string]Entry, len(entries))
	order := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, seen := latest[entry.Key]; !seen {
			order = append(order, entry.Key)
		}
		latest[entry.Key] = entry
	}

	before := len(store.Schema())
	for _, key := range order {
		entry := latest[key]
		if store.Apply(key, entry.Fields, entry.Order) {
			result.Applied++
		} else {
			result.Orphaned++
		}
	}
	if schema := store.Schema(); len(schema) > before {
		result.AddedFields = append([]string(nil), schema[before:]...)
	}

	if result.Orphaned > 0 {
		logging.WarnWithContext(logger, "checkpoint entries reference unknown records", "merge_orphaned_entries",
			logging.String("store", storePath),
			logging.Int("orphaned", result.Orphaned),
			logging.Hint("the store was edited while a run was pending; orphaned entries were discarded"),
		)
	}

	if err := store.Write(storePath); err != nil {
		return result, err
	}
	if err := fileutil.Truncate(logPath); err != nil {
		return result, err
	}

	logger.Info("checkpoint merged",
		logging.Event("merge_completed"),
		logging.String("store", storePath),
		logging.Int("entries", result.Entries),
		logging.Int("applied", result.Applied),
		logging.Any("added_fields", result.AddedFields),
	)
	return result, nil
}

func truncateIfNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	return fileutil.Truncate(path)
}
