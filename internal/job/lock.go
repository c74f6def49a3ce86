package job

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"
)

// ErrStoreLocked reports that another run holds the store lock.
var ErrStoreLocked = errors.New("store is locked by another run")

// LockPath returns the advisory lock file guarding a store.
func LockPath(storePath string) string {
	return storePath + ".lock"
}

// storeLock is an exclusive, non-blocking advisory lock on a store.
type storeLock struct {
	lock *flock.Flock
}

func acquireStoreLock(storePath string) (*storeLock, error) {
	lock := flock.New(LockPath(storePath))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStoreLocked, LockPath(storePath))
	}
	return &storeLock{lock: lock}, nil
}

func (l *storeLock) release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
