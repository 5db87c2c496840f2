// Package store is a local backend that executes compiled operations
// against a JSON data file. It mirrors the remote backend's behavior for
// versioning, localization, locking and deletion so the console can run
// offline and be exercised in tests without a server.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/borisblack/scicms-client-sub000/scicms/storage"
	"github.com/borisblack/scicms-client-sub000/types"
)

// Constants for file locking
const (
	lockTimeout    = 3 * time.Second
	lockMaxRetries = 3
	lockRetryDelay = 100 * time.Millisecond
)

// DefaultLocale is assigned to localized records created without a locale
const DefaultLocale = "en"

// Schema is the catalog the store resolves items and relations against
type Schema interface {
	GetByName(name string) (*types.Item, error)
	Names() []string
}

// Store executes operations against a JSON file. Reads are served from
// memory; every write reloads the file under a cross-process lock, applies
// the change and writes the file back atomically.
type Store struct {
	path        string
	schema      Schema
	lockManager *storage.LockManager

	fs          FileSystem
	lockFactory FileLockFactory
	fileLock    FileLock

	data *storage.StoreData

	timeFunc func() time.Time
	idFunc   func() string
	actor    string
	promote  PromoteFunc
	logger   *slog.Logger
}

// Open creates a store on path, loading existing data if the file exists
func Open(path string, schema Schema, opts ...Option) (*Store, error) {
	s := &Store{
		path:        path,
		schema:      schema,
		lockManager: storage.NewLockManager(),
		timeFunc:    time.Now,
		idFunc:      newID,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fs == nil {
		s.fs = OSFileSystem{}
	}
	if s.lockFactory == nil {
		s.lockFactory = FlockFactory{}
	}
	s.fileLock = s.lockFactory.New(path + ".lock")
	s.data = storage.NewStoreData(s.timeFunc())

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if err := s.withFileLock(ctx, s.load); err != nil {
		return nil, fmt.Errorf("failed to load data: %w", err)
	}
	return s, nil
}

// Close releases resources held by the store
func (s *Store) Close() error {
	return nil
}

// Actor returns the user id the store acts as
func (s *Store) Actor() string {
	return s.actor
}

// Execute runs op and returns the backend response. Domain failures such as
// a missing record or a rejected promotion are reported in Response.Errors
// the way the remote backend reports them; the error return is reserved for
// I/O failures and cancellation.
func (s *Store) Execute(ctx context.Context, op *types.Operation) (*types.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	item, err := s.schema.GetByName(op.Item)
	if err != nil {
		return nil, err
	}

	if op.Kind == types.OpFind {
		return storage.ExecuteWithResult(s.lockManager, storage.ReadOperation, func() (*types.Response, error) {
			return s.find(item, op), nil
		})
	}

	return storage.ExecuteWithResult(s.lockManager, storage.WriteOperation, func() (*types.Response, error) {
		var resp *types.Response
		err := s.withFileLock(ctx, func() error {
			if err := s.load(); err != nil {
				return err
			}
			var changed bool
			resp, changed = s.apply(item, op)
			if !changed {
				return nil
			}
			return s.save()
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Errors) > 0 {
			s.logger.Debug("operation rejected", "op", string(op.Kind), "item", item.Name, "id", op.ID, "error", resp.Errors[0].Message)
		}
		return resp, nil
	})
}

func (s *Store) apply(item *types.Item, op *types.Operation) (*types.Response, bool) {
	switch op.Kind {
	case types.OpCreate:
		return s.create(item, op)
	case types.OpCreateVersion:
		return s.createVersion(item, op)
	case types.OpCreateLocalization:
		return s.createLocalization(item, op)
	case types.OpUpdate:
		return s.update(item, op)
	case types.OpDelete:
		return s.delete(item, op)
	case types.OpPurge:
		return s.purge(item, op)
	case types.OpLock:
		return s.lock(item, op)
	case types.OpUnlock:
		return s.unlock(item, op)
	case types.OpPromote:
		return s.promoteRow(item, op)
	default:
		return failed("unsupported operation %s", op.Kind), false
	}
}

// withFileLock runs fn while holding the cross-process file lock
func (s *Store) withFileLock(ctx context.Context, fn func() error) error {
	if err := s.acquireLock(ctx); err != nil {
		return err
	}
	defer func() { _ = s.fileLock.Unlock() }()
	return fn()
}

// acquireLock attempts to acquire an exclusive file lock with retry logic
func (s *Store) acquireLock(ctx context.Context) error {
	for i := 0; i < lockMaxRetries; i++ {
		locked, err := s.fileLock.TryLockContext(ctx, lockRetryDelay)
		if err != nil {
			return fmt.Errorf("failed to acquire lock: %w", err)
		}
		if locked {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryDelay):
		}
	}
	return fmt.Errorf("failed to acquire lock after %d attempts", lockMaxRetries)
}

// load reads the data file into memory; the caller holds the file lock
func (s *Store) load() error {
	if _, err := s.fs.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	raw, err := s.fs.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}

	var data storage.StoreData
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if data.Items == nil {
		data.Items = make(map[string][]types.ItemData)
	}
	s.data = &data
	return nil
}

// save writes the in-memory data to the data file; the caller holds the
// file lock
func (s *Store) save() error {
	s.data.Metadata.UpdatedAt = s.timeFunc()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpFile := s.path + ".tmp"
	if err := s.fs.WriteFile(tmpFile, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := s.fs.Rename(tmpFile, s.path); err != nil {
		_ = s.fs.Remove(tmpFile)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

func (s *Store) now() string {
	return s.timeFunc().UTC().Format(time.RFC3339)
}

// failed builds a response carrying a single backend error
func failed(format string, args ...interface{}) *types.Response {
	return &types.Response{Errors: []types.ErrorDescriptor{{Message: fmt.Sprintf(format, args...)}}}
}

// rowIndex returns the position of the row with id, or -1
func (s *Store) rowIndex(item string, id string) int {
	for i, row := range s.data.Rows(item) {
		if row.ID() == id {
			return i
		}
	}
	return -1
}

func (s *Store) findRow(item string, id string) types.ItemData {
	if id == "" {
		return nil
	}
	if i := s.rowIndex(item, id); i >= 0 {
		return s.data.Rows(item)[i]
	}
	return nil
}
