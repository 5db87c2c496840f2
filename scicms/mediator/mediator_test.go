package mediator

import (
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) callbacks(name string) *Callbacks {
	return &Callbacks{
		OnUpdate: func(id string) { r.add(name + ":update:" + id) },
		OnDelete: func(id string) { r.add(name + ":delete:" + id) },
	}
}

func (r *recorder) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func TestRunObservableCallbacks(t *testing.T) {
	t.Run("runs callbacks in registration order", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		m.AddObserver("book#view#1", "user#view#7", rec.callbacks("first"))
		m.AddObserver("book#view#2", "user#view#7", rec.callbacks("second"))

		m.RunObservableCallbacks("user#view#7", Update, "7")

		want := []string{"first:update:7", "second:update:7"}
		if diff := cmp.Diff(want, rec.got()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("delete runs delete handlers only", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		m.AddObservable("user#view#7", rec.callbacks("x"))

		m.RunObservableCallbacks("user#view#7", Delete, "7")

		want := []string{"x:delete:7"}
		if diff := cmp.Diff(want, rec.got()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("unknown key is a no-op", func(t *testing.T) {
		m := New()
		m.RunObservableCallbacks("missing", Update, "1")
	})

	t.Run("same callbacks added twice run once", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		cb := rec.callbacks("x")
		m.AddObserver("a", "b", cb)
		m.AddObserver("a", "b", cb)
		m.AddObservable("b", cb)

		m.RunObservableCallbacks("b", Update, "1")

		if got := len(rec.got()); got != 1 {
			t.Errorf("expected 1 invocation, got %d", got)
		}
		if got := m.Observing("a"); len(got) != 1 {
			t.Errorf("expected a single observed key, got %v", got)
		}
	})

	t.Run("nil handler is skipped", func(t *testing.T) {
		m := New()
		called := false
		m.AddObservable("k", &Callbacks{OnUpdate: func(string) { called = true }})

		m.RunObservableCallbacks("k", Delete, "1")
		if called {
			t.Error("update handler should not run for delete")
		}
	})

	t.Run("callbacks may re-enter the mediator", func(t *testing.T) {
		m := New()
		m.AddObservable("k", &Callbacks{OnDelete: func(string) { m.RemoveKey("k") }})

		m.RunObservableCallbacks("k", Delete, "1")
		if n := m.CallbackCount("k"); n != 0 {
			t.Errorf("expected key to be removed, %d callbacks remain", n)
		}
	})
}

func TestChangeKey(t *testing.T) {
	t.Run("callbacks follow the new key", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		m.AddObserver("book#view#1", "user#view#1", rec.callbacks("book"))

		m.ChangeKey("user#view#1", "user#view#abc")

		m.RunObservableCallbacks("user#view#1", Update, "abc")
		if got := rec.got(); len(got) != 0 {
			t.Fatalf("old key should be silent, got %v", got)
		}

		m.RunObservableCallbacks("user#view#abc", Update, "abc")
		want := []string{"book:update:abc"}
		if diff := cmp.Diff(want, rec.got()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]string{"user#view#abc"}, m.Observing("book#view#1")); diff != "" {
			t.Errorf("observer set mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("self-observing key is rewritten on both sides", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		m.AddObserver("user#view#1", "user#view#1", rec.callbacks("self"))

		m.ChangeKey("user#view#1", "user#view#abc")

		if got := m.Observing("user#view#1"); len(got) != 0 {
			t.Errorf("old observer entry should be gone, got %v", got)
		}
		if diff := cmp.Diff([]string{"user#view#abc"}, m.Observing("user#view#abc")); diff != "" {
			t.Errorf("observer set mismatch (-want +got):\n%s", diff)
		}

		m.RunObservableCallbacks("user#view#abc", Delete, "abc")
		if diff := cmp.Diff([]string{"self:delete:abc"}, rec.got()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}

		// ownership moved too, so closing the new key removes the callbacks
		m.RemoveKey("user#view#abc")
		if n := m.CallbackCount("user#view#abc"); n != 0 {
			t.Errorf("expected no callbacks, got %d", n)
		}
	})

	t.Run("merges into existing bindings", func(t *testing.T) {
		m := New()
		rec := &recorder{}
		m.AddObservable("old", rec.callbacks("a"))
		m.AddObservable("new", rec.callbacks("b"))

		m.ChangeKey("old", "new")

		m.RunObservableCallbacks("new", Update, "1")
		want := []string{"b:update:1", "a:update:1"}
		if diff := cmp.Diff(want, rec.got()); diff != "" {
			t.Errorf("events mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("same key is a no-op", func(t *testing.T) {
		m := New()
		m.AddObservable("k", &Callbacks{})
		m.ChangeKey("k", "k")
		if n := m.CallbackCount("k"); n != 1 {
			t.Errorf("expected 1 callback, got %d", n)
		}
	})
}

func TestRemoveKey(t *testing.T) {
	m := New()
	rec := &recorder{}
	m.AddObserver("book#view#1", "user#view#7", rec.callbacks("book"))
	m.AddObserver("author#view#2", "user#view#7", rec.callbacks("author"))
	m.AddObserver("user#view#7", "role#view#3", rec.callbacks("user"))

	m.RemoveKey("book#view#1")

	m.RunObservableCallbacks("user#view#7", Update, "7")
	want := []string{"author:update:7"}
	if diff := cmp.Diff(want, rec.got()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}

	m.RemoveKey("user#view#7")
	if got := m.Observing("author#view#2"); len(got) != 0 {
		t.Errorf("references to removed key should be gone, got %v", got)
	}
	if n := m.CallbackCount("role#view#3"); n != 0 {
		t.Errorf("callbacks owned by removed key should be gone, got %d", n)
	}
}

func TestRemoveKeySharedCallbacks(t *testing.T) {
	m := New()
	rec := &recorder{}
	shared := rec.callbacks("shared")
	m.AddObserver("book#view#1", "user#view#7", shared)
	m.AddObserver("book#view#2", "user#view#7", shared)

	if n := m.CallbackCount("user#view#7"); n != 2 {
		t.Fatalf("expected one binding per owner, got %d", n)
	}

	m.RunObservableCallbacks("user#view#7", Update, "7")
	if diff := cmp.Diff([]string{"shared:update:7"}, rec.got()); diff != "" {
		t.Errorf("shared callbacks should run once (-want +got):\n%s", diff)
	}

	m.RemoveKey("book#view#1")

	m.RunObservableCallbacks("user#view#7", Delete, "7")
	want := []string{"shared:update:7", "shared:delete:7"}
	if diff := cmp.Diff(want, rec.got()); diff != "" {
		t.Errorf("second owner should keep its subscription (-want +got):\n%s", diff)
	}
	if n := m.CallbackCount("user#view#7"); n != 1 {
		t.Errorf("expected the remaining owner's binding, got %d", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.AddObservable("k", &Callbacks{OnUpdate: func(string) {}})
			m.RunObservableCallbacks("k", Update, "1")
		}()
	}
	wg.Wait()

	if n := m.CallbackCount("k"); n != 20 {
		t.Errorf("expected 20 callbacks, got %d", n)
	}
}

func TestOperationString(t *testing.T) {
	if Update.String() != "update" || Delete.String() != "delete" {
		t.Errorf("unexpected names %q %q", Update, Delete)
	}
}
