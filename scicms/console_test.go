package scicms_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/borisblack/scicms-client-sub000/scicms"
	"github.com/borisblack/scicms-client-sub000/scicms/identity"
	"github.com/borisblack/scicms-client-sub000/scicms/mediator"
	"github.com/borisblack/scicms-client-sub000/testutil"
	"github.com/borisblack/scicms-client-sub000/types"
)

// stubTransport answers every operation with a canned response
type stubTransport struct {
	resp  *types.Response
	err   error
	calls int
	last  *types.Operation
}

func (s *stubTransport) Execute(_ context.Context, op *types.Operation) (*types.Response, error) {
	s.calls++
	s.last = op
	if s.err != nil {
		return nil, s.err
	}
	if s.resp == nil {
		return &types.Response{}, nil
	}
	return s.resp, nil
}

type events struct {
	updated []string
	deleted []string
}

func (e *events) callbacks() *mediator.Callbacks {
	return &mediator.Callbacks{
		OnUpdate: func(id string) { e.updated = append(e.updated, id) },
		OnDelete: func(id string) { e.deleted = append(e.deleted, id) },
	}
}

func boolPtr(b bool) *bool { return &b }

func TestRejectedMutationsNeverReachTheTransport(t *testing.T) {
	transport := &stubTransport{}
	c := scicms.New(testutil.Schema(t), transport)
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() (*scicms.Result, error)
	}{
		{"version of a non-versioned item", func() (*scicms.Result, error) {
			return c.CreateVersion(ctx, "", "book", "id-1", nil, "", "", false)
		}},
		{"lock of a non-lockable item", func() (*scicms.Result, error) {
			return c.Lock(ctx, "", "audit", "id-1")
		}},
		{"create of a read-only item", func() (*scicms.Result, error) {
			return c.Create(ctx, "", "audit", map[string]interface{}{"event": "login"})
		}},
		{"update of an unsaved record", func() (*scicms.Result, error) {
			return c.Update(ctx, "", "book", "", map[string]interface{}{"title": "x"})
		}},
		{"promote without lifecycle", func() (*scicms.Result, error) {
			return c.Promote(ctx, "", "book", "id-1", "", "published")
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.run()
			if !errors.Is(err, types.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if transport.calls != 0 {
		t.Errorf("expected no transport calls, got %d", transport.calls)
	}

	if _, err := c.Create(ctx, "", "unknown", nil); !errors.Is(err, types.ErrSchema) {
		t.Errorf("expected schema error for unknown item, got %v", err)
	}
}

func TestCreateRewritesDraftView(t *testing.T) {
	schema := testutil.Schema(t)
	s, _ := testutil.NewStore(t, schema)
	c := scicms.New(schema, s)

	key, err := c.OpenView("user", identity.KindView, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if key != "user#view#1" {
		t.Fatalf("expected draft key user#view#1, got %q", key)
	}

	rec := &events{}
	c.Mediator().AddObservable(key, rec.callbacks())

	res, err := c.Create(context.Background(), key, "user", map[string]interface{}{"username": "carol"})
	if err != nil {
		t.Fatal(err)
	}

	if res.Key != "user#view#id-1" {
		t.Errorf("expected key user#view#id-1, got %q", res.Key)
	}
	if _, ok := c.Views().Lookup(key); ok {
		t.Error("draft key should no longer be open")
	}
	if view, ok := c.Views().Lookup(res.Key); !ok || view.ID != "id-1" {
		t.Errorf("expected view for id-1, got %+v", view)
	}
	if diff := cmp.Diff([]string{"id-1"}, rec.updated); diff != "" {
		t.Errorf("update notifications mismatch (-want +got):\n%s", diff)
	}
	if c.Mediator().CallbackCount(res.Key) != 1 {
		t.Error("callbacks should follow the rewritten key")
	}
}

func TestMutationNotifications(t *testing.T) {
	store, schema, u := testutil.LoadUniverse(t)
	c := scicms.New(schema, store, scicms.WithAuth(scicms.StaticAuth(testutil.Actor)))
	ctx := context.Background()

	key, err := c.OpenView("book", identity.KindView, u.Dune.ID(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec := &events{}
	c.Mediator().AddObservable(key, rec.callbacks())

	if _, err := c.Update(ctx, key, "book", u.Dune.ID(), map[string]interface{}{"pages": 500}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Lock(ctx, key, "book", u.Dune.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success || !c.IsLockedByMe(res.Data) {
		t.Errorf("expected the record to be locked by %q, got %+v", testutil.Actor, res.Data)
	}

	if _, err := c.Delete(ctx, key, "book", u.Dune.ID(), types.NoAction); err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]string{u.Dune.ID(), u.Dune.ID()}, rec.updated); diff != "" {
		t.Errorf("update notifications mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{u.Dune.ID()}, rec.deleted); diff != "" {
		t.Errorf("delete notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestRefusedLockDoesNotNotify(t *testing.T) {
	transport := &stubTransport{resp: &types.Response{
		Success: boolPtr(false),
		Data:    []types.ItemData{{"id": "7", "lockedBy": map[string]interface{}{"data": map[string]interface{}{"id": "u2"}}}},
	}}
	c := scicms.New(testutil.Schema(t), transport, scicms.WithAuth(scicms.StaticAuth("u1")))

	key, _ := c.OpenView("book", identity.KindView, "7", nil)
	rec := &events{}
	c.Mediator().AddObservable(key, rec.callbacks())

	res, err := c.Lock(context.Background(), key, "book", "7")
	if err != nil {
		t.Fatal(err)
	}
	if res.Success {
		t.Error("expected a refused lock")
	}
	if c.IsLockedByMe(res.Data) {
		t.Error("record is locked by someone else")
	}
	if len(rec.updated) != 0 {
		t.Errorf("expected no notifications, got %v", rec.updated)
	}
}

func TestPurgeReturnsRemovedRecords(t *testing.T) {
	store, schema, u := testutil.LoadUniverse(t)
	c := scicms.New(schema, store)
	ctx := context.Background()

	v2, err := c.CreateVersion(ctx, "", "article", u.Article.ID(), nil, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	v3, err := c.CreateVersion(ctx, "", "article", v2.Data.ID(), nil, "", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if v2.Data.MajorRev() != "v2" || v3.Data.MajorRev() != "v3" {
		t.Fatalf("expected v2 and v3, got %q and %q", v2.Data.MajorRev(), v3.Data.MajorRev())
	}

	key, err := c.OpenView("article", identity.KindView, v3.Data.ID(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec := &events{}
	c.Mediator().AddObservable(key, rec.callbacks())

	res, err := c.Purge(ctx, key, "article", v3.Data.ID(), types.NoAction)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 3 {
		t.Errorf("expected 3 removed versions, got %d", len(res.Removed))
	}
	if res.Data.ID() != v3.Data.ID() {
		t.Errorf("expected purged record %q, got %v", v3.Data.ID(), res.Data)
	}
	if diff := cmp.Diff([]string{v3.Data.ID()}, rec.deleted); diff != "" {
		t.Errorf("delete notifications mismatch (-want +got):\n%s", diff)
	}
	if len(rec.updated) != 0 {
		t.Errorf("expected no update notifications, got %v", rec.updated)
	}

	page, err := c.Find(ctx, "", "article", types.QueryRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 0 {
		t.Errorf("expected no articles left, got %d", len(page.Data))
	}
}

func TestFind(t *testing.T) {
	t.Run("against the local store", func(t *testing.T) {
		store, schema, u := testutil.LoadUniverse(t)
		c := scicms.New(schema, store)

		page, err := c.Find(context.Background(), "book#default#1", "book", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "title", Value: "DUN"}},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Data) != 1 || page.Data[0].ID() != u.Dune.ID() {
			t.Errorf("expected Dune only, got %v", page.Data)
		}
		if page.Pagination.Total != 1 {
			t.Errorf("expected total 1, got %+v", page.Pagination)
		}
	})

	t.Run("missing pagination defaults to a single page", func(t *testing.T) {
		transport := &stubTransport{resp: &types.Response{Data: []types.ItemData{{"id": "1"}, {"id": "2"}}}}
		c := scicms.New(testutil.Schema(t), transport)

		page, err := c.Find(context.Background(), "", "tag", types.QueryRequest{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		want := types.Pagination{Page: 1, PageCount: 1, PageSize: 2, Total: 2}
		if diff := cmp.Diff(want, page.Pagination); diff != "" {
			t.Errorf("pagination mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("malformed filters are dropped", func(t *testing.T) {
		transport := &stubTransport{}
		c := scicms.New(testutil.Schema(t), transport)

		_, err := c.Find(context.Background(), "", "user", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "age", Value: "many"}, {AttributeID: "username", Value: "al"}},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(transport.last.FilterErrors) != 1 {
			t.Errorf("expected one dropped filter, got %v", transport.last.FilterErrors)
		}
		if _, ok := transport.last.Filters["age"]; ok {
			t.Error("malformed filter should not be sent")
		}
	})

	t.Run("malformed filters are reported to the caller", func(t *testing.T) {
		transport := &stubTransport{}
		c := scicms.New(testutil.Schema(t), transport)

		page, err := c.Find(context.Background(), "", "user", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "age", Value: "many"}, {AttributeID: "username", Value: "al"}},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if !errors.Is(page.Err(), types.ErrFilterFormat) {
			t.Fatalf("expected a filter format error, got %v", page.Err())
		}
		var formatErr *types.FilterFormatError
		if !errors.As(page.Err(), &formatErr) || formatErr.Attribute != "age" {
			t.Fatalf("expected the age filter to be reported, got %v", page.Err())
		}
		if got, want := formatErr.Error(), `Invalid filter format for age: "many"`; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("reported filter errors are localized", func(t *testing.T) {
		store, schema, _ := testutil.LoadUniverse(t)
		c := scicms.New(schema, store, scicms.WithLanguage(scicms.ParseLanguage("ru")))

		page, err := c.Find(context.Background(), "", "user", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "birthDate", Value: "not-a-date"}},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(page.Data) != 2 {
			t.Errorf("the remaining request should still run, got %d users", len(page.Data))
		}
		if len(page.FilterErrors) != 1 || !errors.Is(page.Err(), types.ErrFilterFormat) {
			t.Fatalf("expected one filter format error, got %v", page.FilterErrors)
		}
		if got, want := page.Err().Error(), `Неверный формат фильтра birthDate: "not-a-date"`; got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	})

	t.Run("well-formed filters report nothing", func(t *testing.T) {
		c := scicms.New(testutil.Schema(t), &stubTransport{})
		page, err := c.Find(context.Background(), "", "user", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "age", Value: "34"}},
		}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if page.Err() != nil {
			t.Errorf("expected no filter errors, got %v", page.Err())
		}
	})

	t.Run("private attributes cannot be filtered", func(t *testing.T) {
		c := scicms.New(testutil.Schema(t), &stubTransport{})
		_, err := c.Find(context.Background(), "", "user", types.QueryRequest{
			Filters: []types.FilterSpec{{AttributeID: "passwordHash", Value: "x"}},
		}, nil)
		if !errors.Is(err, types.ErrSchema) {
			t.Errorf("expected schema error, got %v", err)
		}
	})
}

// blockingTransport holds the first request until its context ends
type blockingTransport struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
}

func (b *blockingTransport) Execute(ctx context.Context, _ *types.Operation) (*types.Response, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()

	if first {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &types.Response{Data: []types.ItemData{{"id": "fresh"}}}, nil
}

func TestFindSupersession(t *testing.T) {
	transport := &blockingTransport{started: make(chan struct{})}
	c := scicms.New(testutil.Schema(t), transport)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := c.Find(ctx, "tag#default#1", "tag", types.QueryRequest{}, nil)
		errc <- err
	}()

	select {
	case <-transport.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first request never started")
	}

	page, err := c.Find(ctx, "tag#default#1", "tag", types.QueryRequest{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Data) != 1 || page.Data[0].ID() != "fresh" {
		t.Errorf("unexpected page %v", page.Data)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, scicms.ErrSuperseded) {
			t.Errorf("expected ErrSuperseded, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first request was not canceled")
	}
}

func TestTransportErrors(t *testing.T) {
	ctx := context.Background()
	find := func(t *testing.T, transport *stubTransport, opts ...scicms.Option) error {
		t.Helper()
		c := scicms.New(testutil.Schema(t), transport, opts...)
		_, err := c.Find(ctx, "", "tag", types.QueryRequest{}, nil)
		return err
	}

	t.Run("backend errors keep their descriptors", func(t *testing.T) {
		descriptors := []types.ErrorDescriptor{{Message: "Access denied", Path: []string{"tags"}}}
		err := find(t, &stubTransport{resp: &types.Response{Errors: descriptors}})

		var terr *types.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("expected transport error, got %v", err)
		}
		if terr.Message != "The server rejected the request" {
			t.Errorf("unexpected message %q", terr.Message)
		}
		if diff := cmp.Diff(descriptors, terr.Descriptors); diff != "" {
			t.Errorf("descriptors mismatch (-want +got):\n%s", diff)
		}
		if terr.Operation != types.OpFind || terr.Item != "tag" {
			t.Errorf("unexpected operation %s %s", terr.Operation, terr.Item)
		}
	})

	t.Run("messages are localized", func(t *testing.T) {
		err := find(t, &stubTransport{resp: &types.Response{Errors: []types.ErrorDescriptor{{Message: "denied"}}}},
			scicms.WithLanguage(scicms.ParseLanguage("ru")))
		if err == nil || err.Error() != "Сервер отклонил запрос" {
			t.Errorf("expected russian message, got %v", err)
		}
	})

	t.Run("network failures keep their cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := find(t, &stubTransport{err: fmt.Errorf("post: %w", cause)})
		if !errors.Is(err, types.ErrTransport) || !errors.Is(err, cause) {
			t.Errorf("expected wrapped transport error, got %v", err)
		}
		if err.Error() != "Request failed" {
			t.Errorf("unexpected message %q", err.Error())
		}
	})

	t.Run("deadline", func(t *testing.T) {
		err := find(t, &stubTransport{err: fmt.Errorf("post: %w", context.DeadlineExceeded)})
		if err == nil || err.Error() != "The request timed out" {
			t.Errorf("expected timeout message, got %v", err)
		}
	})

	t.Run("cancellation passes through", func(t *testing.T) {
		err := find(t, &stubTransport{err: context.Canceled})
		if !errors.Is(err, context.Canceled) || errors.Is(err, types.ErrTransport) {
			t.Errorf("expected bare cancellation, got %v", err)
		}
	})
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string][]bool
}

func (m *countingMetrics) Observe(_ context.Context, operation string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string][]bool)
	}
	m.outcomes[operation] = append(m.outcomes[operation], success)
}

func TestMetricsAreRecordedPerOperation(t *testing.T) {
	metrics := &countingMetrics{}
	transport := &stubTransport{}
	c := scicms.New(testutil.Schema(t), transport, scicms.WithMetrics(metrics))
	ctx := context.Background()

	if _, err := c.Find(ctx, "", "tag", types.QueryRequest{}, nil); err != nil {
		t.Fatal(err)
	}
	transport.resp = &types.Response{Errors: []types.ErrorDescriptor{{Message: "denied"}}}
	if _, err := c.Update(ctx, "", "tag", "1", map[string]interface{}{"name": "x"}); err == nil {
		t.Fatal("expected error")
	}
	// rejected before dispatch
	_, _ = c.Lock(ctx, "", "audit", "1")

	want := map[string][]bool{"find": {true}, "update": {false}}
	if diff := cmp.Diff(want, metrics.outcomes); diff != "" {
		t.Errorf("metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestCloseView(t *testing.T) {
	c := scicms.New(testutil.Schema(t), &stubTransport{})
	key, _ := c.OpenView("tag", identity.KindView, "1", nil)
	rec := &events{}
	c.Mediator().AddObservable(key, rec.callbacks())

	c.CloseView(key)
	if c.Mediator().CallbackCount(key) != 0 {
		t.Error("callbacks should be dropped with the view")
	}
	if c.Views().OpenKeys() != 0 {
		t.Errorf("expected no open views, got %d", c.Views().OpenKeys())
	}
}
