package store

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/borisblack/scicms-client-sub000/types"
)

// PromoteFunc decides whether row of item may move to state. A non-nil
// error rejects the promotion and is reported as a backend error.
type PromoteFunc func(item *types.Item, row types.ItemData, state string) error

// Option configures a Store
type Option func(*Store)

// WithFileSystem sets a custom FileSystem implementation
func WithFileSystem(fs FileSystem) Option {
	return func(s *Store) {
		s.fs = fs
	}
}

// WithFileLockFactory sets a custom FileLockFactory implementation
func WithFileLockFactory(factory FileLockFactory) Option {
	return func(s *Store) {
		s.lockFactory = factory
	}
}

// WithTimeFunc sets the clock used for audit timestamps
func WithTimeFunc(fn func() time.Time) Option {
	return func(s *Store) {
		s.timeFunc = fn
	}
}

// WithIDFunc sets the generator for new record ids
func WithIDFunc(fn func() string) Option {
	return func(s *Store) {
		s.idFunc = fn
	}
}

// WithActor sets the user id recorded in createdBy, updatedBy and lockedBy
func WithActor(userID string) Option {
	return func(s *Store) {
		s.actor = userID
	}
}

// WithPromoteFunc sets the lifecycle hook consulted by promote
func WithPromoteFunc(fn PromoteFunc) Option {
	return func(s *Store) {
		s.promote = fn
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func newID() string {
	return uuid.New().String()
}
