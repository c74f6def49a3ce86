package job

import (
	"context"
	"log/slog"

	"quill/internal/checkpoint"
	"quill/internal/logging"
)

// MergePending folds a store's checkpoint log into the store outside of a
// run. It holds the store lock for the duration, so it fails with
// ErrStoreLocked while a run is active.
func MergePending(ctx context.Context, storePath, keyField string, logger *slog.Logger) (checkpoint.MergeResult, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	lock, err := acquireStoreLock(storePath)
	if err != nil {
		return checkpoint.MergeResult{}, err
	}
	defer func() {
		if err := lock.release(); err != nil {
			logger.Warn("release store lock failed", logging.Error(err))
		}
	}()
	return checkpoint.Merge(ctx, storePath, checkpoint.Path(storePath), keyField, logger)
}
