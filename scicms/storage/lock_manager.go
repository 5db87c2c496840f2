package storage

import (
	"sync"
)

// OperationType defines whether an operation only reads shared state or
// modifies it.
type OperationType int

const (
	// ReadOperation may run concurrently with other reads.
	ReadOperation OperationType = iota

	// WriteOperation is exclusive.
	WriteOperation
)

// LockManager centralizes read/write locking for the process-wide shared
// state of this module: the mediator's binding maps, the draft ordinal
// counters and the local store's in-memory data. Callers never touch the
// mutex directly, which keeps lock/unlock pairs in one place.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a new lock manager instance
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn under the lock matching opType. The lock is released
// when fn returns, including on panic.
//
// Example:
//
//	err := lm.Execute(WriteOperation, func() error {
//	    counters[name]++
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// ExecuteWithResult is Execute for functions producing a value
func ExecuteWithResult[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	var result T
	err := lm.Execute(opType, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// Read runs fn under the read lock
func (lm *LockManager) Read(fn func()) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	fn()
}

// Write runs fn under the write lock
func (lm *LockManager) Write(fn func()) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	fn()
}
