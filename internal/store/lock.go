package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	docerrors "github.com/Aman-CERP/docrag/internal/errors"
)

// LockFileName is the lock file created inside the data directory.
const LockFileName = ".docrag.lock"

// DataDirLock serialises writers of one data directory across processes.
// The vector index is a single file rewritten on every mutation, so two
// concurrent writers would lose each other's updates.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock returns a lock for dataDir. Nothing is created until
// Lock or TryLock.
func NewDataDirLock(dataDir string) *DataDirLock {
	p := filepath.Join(dataDir, LockFileName)
	return &DataDirLock{path: p, flock: flock.New(p)}
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}

// Lock blocks until the lock is held.
func (l *DataDirLock) Lock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.locked = true
	return nil
}

// TryLock takes the lock without blocking. When another process holds it
// the error is ERR_209_INDEX_LOCKED.
func (l *DataDirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return docerrors.New(docerrors.ErrCodeIndexLocked, "data directory is locked by another process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("wait for the other docrag command to finish, or stop 'docrag watch'")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Calling it on an unlocked lock is a no-op.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Locked reports whether this handle holds the lock.
func (l *DataDirLock) Locked() bool {
	return l.locked
}
