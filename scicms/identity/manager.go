package identity

import (
	"errors"
	"fmt"

	"github.com/borisblack/scicms-client-sub000/scicms/storage"
)

// ErrUnknownView is returned for keys that are not open
var ErrUnknownView = errors.New("unknown view key")

// Rebinder migrates observer/observable bindings when keys change
type Rebinder interface {
	ChangeKey(oldKey, newKey string)
	RemoveKey(key string)
}

// Manager assigns keys to open views. Draft ordinals are allocated from a
// per-item counter that only grows, so an ordinal is never handed out twice
// in the lifetime of a Manager.
type Manager struct {
	lock     *storage.LockManager
	rebinder Rebinder
	counters map[string]int
	views    map[string]ViewKey
	active   string
}

// NewManager creates a manager that keeps rebinder in sync with key changes
func NewManager(rebinder Rebinder) *Manager {
	return &Manager{
		lock:     storage.NewLockManager(),
		rebinder: rebinder,
		counters: make(map[string]int),
		views:    make(map[string]ViewKey),
	}
}

// GenerateKey returns the key for a view. With an id the result depends on
// the arguments only; without one, the next draft ordinal of item is used.
func (m *Manager) GenerateKey(item, kind, id, suffix string) ViewKey {
	key := ViewKey{Item: item, Kind: kind, ID: id, Suffix: suffix}
	if id == "" {
		m.lock.Write(func() {
			m.counters[item]++
			key.Ordinal = m.counters[item]
		})
	}
	return key
}

// Open generates the key of a new view and tracks it. Opening an id-based
// view that is already open returns the existing key.
func (m *Manager) Open(item, kind, id string, context map[string]interface{}) string {
	key := m.GenerateKey(item, kind, id, Suffix(context))
	s := key.String()
	m.lock.Write(func() {
		m.views[s] = key
	})
	return s
}

// Lookup returns the parts of an open key
func (m *Manager) Lookup(key string) (ViewKey, bool) {
	var vk ViewKey
	var ok bool
	m.lock.Read(func() {
		vk, ok = m.views[key]
	})
	return vk, ok
}

// SetActive marks an open view as the active one
func (m *Manager) SetActive(key string) error {
	return m.lock.Execute(storage.WriteOperation, func() error {
		if _, ok := m.views[key]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownView, key)
		}
		m.active = key
		return nil
	})
}

// Active returns the active view key, or "" when none is active
func (m *Manager) Active() string {
	var active string
	m.lock.Read(func() {
		active = m.active
	})
	return active
}

// RewriteKey moves an open view to the key of the persisted entity id.
// The active pointer follows the view, and every observer/observable
// binding is migrated to the new key. It returns the new key.
func (m *Manager) RewriteKey(oldKey, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("cannot rewrite %s to an empty id", oldKey)
	}

	newKey, err := storage.ExecuteWithResult(m.lock, storage.WriteOperation, func() (string, error) {
		vk, ok := m.views[oldKey]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrUnknownView, oldKey)
		}
		next := vk.WithID(id)
		newKey := next.String()
		if newKey == oldKey {
			return newKey, nil
		}

		delete(m.views, oldKey)
		m.views[newKey] = next
		if m.active == oldKey {
			m.active = newKey
		}
		return newKey, nil
	})
	if err != nil {
		return "", err
	}

	if newKey != oldKey && m.rebinder != nil {
		m.rebinder.ChangeKey(oldKey, newKey)
	}
	return newKey, nil
}

// Close forgets a view and drops all of its bindings
func (m *Manager) Close(key string) {
	m.lock.Write(func() {
		delete(m.views, key)
		if m.active == key {
			m.active = ""
		}
	})
	if m.rebinder != nil {
		m.rebinder.RemoveKey(key)
	}
}

// OpenKeys returns the number of open views
func (m *Manager) OpenKeys() int {
	var n int
	m.lock.Read(func() {
		n = len(m.views)
	})
	return n
}
