// Package mediator is a keyed publish/subscribe registry between open
// views. A view that edits an entity registers as an observable; views
// that display it register as observers with the callbacks to run when
// the observable reports an update or a delete.
package mediator

import (
	"log/slog"

	"github.com/borisblack/scicms-client-sub000/scicms/storage"
)

// Operation is the kind of change reported by an observable
type Operation int

const (
	Update Operation = iota
	Delete
)

func (o Operation) String() string {
	switch o {
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Callbacks is the pair of handlers a listener registers. A registration
// is identified by its owner and the *Callbacks pointer; a pointer shared
// by several owners still runs once per notification.
type Callbacks struct {
	OnUpdate func(id string)
	OnDelete func(id string)
}

type binding struct {
	owner     string
	callbacks *Callbacks
}

// Mediator holds the observer and observable bindings. It is safe for
// concurrent use; callbacks run outside the lock so they may call back
// into the mediator.
type Mediator struct {
	lock *storage.LockManager

	// observers maps an observer key to the observable keys it watches,
	// in registration order
	observers map[string][]string

	// observables maps an observable key to its callbacks, in
	// registration order
	observables map[string][]binding

	logger *slog.Logger
}

// Option configures a Mediator
type Option func(*Mediator)

// WithLogger sets the logger used for dispatch tracing
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mediator) {
		m.logger = logger
	}
}

// New creates an empty mediator
func New(opts ...Option) *Mediator {
	m := &Mediator{
		lock:        storage.NewLockManager(),
		observers:   make(map[string][]string),
		observables: make(map[string][]binding),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddObserver records that observerKey watches observableKey and attaches
// callbacks to the observable on behalf of the observer. The callbacks are
// dropped again when observerKey is removed.
func (m *Mediator) AddObserver(observerKey, observableKey string, callbacks *Callbacks) {
	m.lock.Write(func() {
		m.observers[observerKey] = appendKey(m.observers[observerKey], observableKey)
		if callbacks != nil {
			m.observables[observableKey] = appendBinding(m.observables[observableKey], binding{owner: observerKey, callbacks: callbacks})
		}
	})
}

// AddObservable attaches callbacks to observableKey without an owning
// observer
func (m *Mediator) AddObservable(observableKey string, callbacks *Callbacks) {
	if callbacks == nil {
		return
	}
	m.lock.Write(func() {
		m.observables[observableKey] = appendBinding(m.observables[observableKey], binding{callbacks: callbacks})
	})
}

// RunObservableCallbacks invokes the callbacks registered under key for op,
// in registration order, passing id. Unknown keys are a no-op.
func (m *Mediator) RunObservableCallbacks(key string, op Operation, id string) {
	var bindings []binding
	m.lock.Read(func() {
		bindings = append(bindings, m.observables[key]...)
	})
	if len(bindings) == 0 {
		return
	}

	m.logger.Debug("dispatching observable callbacks", "key", key, "op", op.String(), "id", id, "count", len(bindings))
	seen := make(map[*Callbacks]bool, len(bindings))
	for _, b := range bindings {
		if seen[b.callbacks] {
			continue
		}
		seen[b.callbacks] = true
		var fn func(string)
		switch op {
		case Update:
			fn = b.callbacks.OnUpdate
		case Delete:
			fn = b.callbacks.OnDelete
		}
		if fn != nil {
			fn(id)
		}
	}
}

// ChangeKey moves every binding of oldKey to newKey: its observer set (a
// self reference included), its callbacks, the callbacks it owns on other
// observables and the references other observers hold to it. A following
// RunObservableCallbacks(newKey, ...) reaches every listener that was
// registered under oldKey.
func (m *Mediator) ChangeKey(oldKey, newKey string) {
	if oldKey == newKey {
		return
	}
	m.lock.Write(func() {
		// references held by observers, including oldKey's own set
		for observer, keys := range m.observers {
			m.observers[observer] = renameKey(keys, oldKey, newKey)
		}
		if keys, ok := m.observers[oldKey]; ok {
			merged := m.observers[newKey]
			for _, k := range keys {
				merged = appendKey(merged, k)
			}
			m.observers[newKey] = merged
			delete(m.observers, oldKey)
		}

		// ownership of callbacks on other observables
		for key, bindings := range m.observables {
			for i := range bindings {
				if bindings[i].owner == oldKey {
					bindings[i].owner = newKey
				}
			}
			m.observables[key] = bindings
		}

		if bindings, ok := m.observables[oldKey]; ok {
			merged := m.observables[newKey]
			for _, b := range bindings {
				merged = appendBinding(merged, b)
			}
			m.observables[newKey] = merged
			delete(m.observables, oldKey)
		}
	})
	m.logger.Debug("changed mediator key", "old", oldKey, "new", newKey)
}

// RemoveKey drops every binding of key: its observer set, its callbacks,
// the callbacks it registered on other observables and the references
// other observers hold to it.
func (m *Mediator) RemoveKey(key string) {
	m.lock.Write(func() {
		delete(m.observers, key)
		for observer, keys := range m.observers {
			m.observers[observer] = removeKey(keys, key)
		}

		delete(m.observables, key)
		for observable, bindings := range m.observables {
			kept := bindings[:0]
			for _, b := range bindings {
				if b.owner != key {
					kept = append(kept, b)
				}
			}
			if len(kept) == 0 {
				delete(m.observables, observable)
			} else {
				m.observables[observable] = kept
			}
		}
	})
}

// Observing returns the observable keys observerKey watches
func (m *Mediator) Observing(observerKey string) []string {
	var keys []string
	m.lock.Read(func() {
		keys = append(keys, m.observers[observerKey]...)
	})
	return keys
}

// CallbackCount returns the number of callbacks registered under key
func (m *Mediator) CallbackCount(key string) int {
	var n int
	m.lock.Read(func() {
		n = len(m.observables[key])
	})
	return n
}

func appendKey(keys []string, key string) []string {
	for _, k := range keys {
		if k == key {
			return keys
		}
	}
	return append(keys, key)
}

func removeKey(keys []string, key string) []string {
	out := keys[:0]
	for _, k := range keys {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

func renameKey(keys []string, oldKey, newKey string) []string {
	var out []string
	for _, k := range keys {
		if k == oldKey {
			k = newKey
		}
		out = appendKey(out, k)
	}
	return out
}

func appendBinding(bindings []binding, b binding) []binding {
	for _, existing := range bindings {
		if existing.owner == b.owner && existing.callbacks == b.callbacks {
			return bindings
		}
	}
	return append(bindings, b)
}
