package store

import (
	"context"
	"sync"
	"time"
)

// MockFileLock is an in-process FileLock for tests
type MockFileLock struct {
	mu       sync.Mutex
	locked   bool
	lockErr  error
	Attempts int
}

func (l *MockFileLock) TryLockContext(_ context.Context, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Attempts++
	if l.lockErr != nil {
		return false, l.lockErr
	}
	if l.locked {
		return false, nil
	}
	l.locked = true
	return true, nil
}

func (l *MockFileLock) Unlock() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = false
	return nil
}

// IsLocked reports whether the lock is held
func (l *MockFileLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked
}

// SetLockError makes every following lock attempt fail with err
func (l *MockFileLock) SetLockError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lockErr = err
}

// MockFileLockFactory hands out one MockFileLock per path
type MockFileLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MockFileLock
}

// NewMockFileLockFactory creates a mock factory
func NewMockFileLockFactory() *MockFileLockFactory {
	return &MockFileLockFactory{locks: make(map[string]*MockFileLock)}
}

func (f *MockFileLockFactory) New(path string) FileLock {
	return f.Lock(path)
}

// Lock returns the mock lock for path, creating it on first use
func (f *MockFileLockFactory) Lock(path string) *MockFileLock {
	f.mu.Lock()
	defer f.mu.Unlock()
	if l, ok := f.locks[path]; ok {
		return l
	}
	l := &MockFileLock{}
	f.locks[path] = l
	return l
}
