package store

import (
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MockFileSystem is an in-memory FileSystem for tests. Setting one of the
// error fields makes the matching call fail.
type MockFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte

	ReadFileError  error
	WriteFileError error
	RenameError    error

	// Writes counts successful WriteFile calls
	Writes int
}

type memFileInfo struct {
	name string
	size int64
}

func (fi memFileInfo) Name() string       { return fi.name }
func (fi memFileInfo) Size() int64        { return fi.size }
func (fi memFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi memFileInfo) ModTime() time.Time { return time.Time{} }
func (fi memFileInfo) IsDir() bool        { return false }
func (fi memFileInfo) Sys() interface{}   { return nil }

// NewMockFileSystem creates an empty mock file system
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{files: make(map[string][]byte)}
}

func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memFileInfo{name: filepath.Base(name), size: int64(len(content))}, nil
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	if m.ReadFileError != nil {
		return nil, m.ReadFileError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), content...), nil
}

func (m *MockFileSystem) WriteFile(name string, data []byte, _ fs.FileMode) error {
	if m.WriteFileError != nil {
		return m.WriteFileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), data...)
	m.Writes++
	return nil
}

func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	if m.RenameError != nil {
		return m.RenameError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	content, ok := m.files[oldpath]
	if !ok {
		return os.ErrNotExist
	}
	m.files[newpath] = content
	delete(m.files, oldpath)
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return os.ErrNotExist
	}
	delete(m.files, name)
	return nil
}

// SetFile seeds a file
func (m *MockFileSystem) SetFile(name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append([]byte(nil), content...)
}

// FileContent returns a copy of a file's content
func (m *MockFileSystem) FileContent(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	content, ok := m.files[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), content...), true
}
