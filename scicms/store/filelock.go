package store

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process exclusive lock
type FileLock interface {
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)
	Unlock() error
}

// FileLockFactory creates the lock guarding a data file
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory creates locks backed by github.com/gofrs/flock
type FlockFactory struct{}

// New returns a flock on path. *flock.Flock satisfies FileLock directly.
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
