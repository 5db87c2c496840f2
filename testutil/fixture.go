// Package testutil provides the shared test schema and a local store
// populated with a small, known universe of records.
package testutil

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/borisblack/scicms-client-sub000/scicms/mutation"
	"github.com/borisblack/scicms-client-sub000/scicms/registry"
	"github.com/borisblack/scicms-client-sub000/scicms/store"
	"github.com/borisblack/scicms-client-sub000/types"
)

//go:embed testdata/schema.yaml
var schemaYAML []byte

// Actor is the user id fixture stores act as
const Actor = "tester"

// StorePath is the data file name used on the mock file system
const StorePath = "data.json"

// FixedTime is the clock of fixture stores
var FixedTime = time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)

// Executor runs compiled operations
type Executor interface {
	Execute(ctx context.Context, op *types.Operation) (*types.Response, error)
}

// Schema returns the registry built from testdata/schema.yaml
func Schema(t testing.TB) *registry.Registry {
	t.Helper()
	items, err := registry.Decode(bytes.NewReader(schemaYAML))
	if err != nil {
		t.Fatalf("failed to decode fixture schema: %v", err)
	}
	reg, err := registry.New(items...)
	if err != nil {
		t.Fatalf("invalid fixture schema: %v", err)
	}
	return reg
}

// SequentialIDs returns a generator of "<prefix>-1", "<prefix>-2", ...
func SequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// NewStore opens an empty store on a mock file system with deterministic
// ids and clock. Extra options are applied last.
func NewStore(t testing.TB, schema store.Schema, opts ...store.Option) (*store.Store, *store.MockFileSystem) {
	t.Helper()
	fs := store.NewMockFileSystem()
	base := []store.Option{
		store.WithFileSystem(fs),
		store.WithFileLockFactory(store.NewMockFileLockFactory()),
		store.WithIDFunc(SequentialIDs("id")),
		store.WithTimeFunc(func() time.Time { return FixedTime }),
		store.WithActor(Actor),
	}
	s, err := store.Open(StorePath, schema, append(base, opts...)...)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, fs
}

// Mutate compiles and executes a write, failing the test on any error
func Mutate(t testing.TB, exec Executor, schema *registry.Registry, kind types.OperationKind, itemName string, args types.MutationArgs) *types.Response {
	t.Helper()
	item, err := schema.GetByName(itemName)
	if err != nil {
		t.Fatal(err)
	}
	op, err := mutation.NewCompiler(schema).Compile(kind, item, args)
	if err != nil {
		t.Fatalf("failed to compile %s %s: %v", kind, itemName, err)
	}
	resp, err := exec.Execute(context.Background(), op)
	if err != nil {
		t.Fatalf("failed to execute %s %s: %v", kind, itemName, err)
	}
	if len(resp.Errors) > 0 {
		t.Fatalf("%s %s rejected: %s", kind, itemName, resp.Errors[0].Message)
	}
	return resp
}

// Create inserts a record and returns it
func Create(t testing.TB, exec Executor, schema *registry.Registry, itemName string, data map[string]interface{}) types.ItemData {
	t.Helper()
	resp := Mutate(t, exec, schema, types.OpCreate, itemName, types.MutationArgs{Data: data})
	return resp.Data[0]
}

// Universe names the records LoadUniverse creates
type Universe struct {
	Avatar types.ItemData // media "alice.png"
	Home   types.ItemData // location "Baker Street"

	Alice types.ItemData // user, age 34, active, born 1990-05-17
	Bob   types.ItemData // user, age 27, inactive, born 1997-11-02

	Fiction types.ItemData // tag
	Science types.ItemData // tag

	Dune    types.ItemData // book by Alice, 412 pages, tags fiction+science
	Cosmos  types.ItemData // book by Bob, 365 pages, tag science
	Orphans types.ItemData // book without author, 120 pages

	Article types.ItemData // article v1, locale en
}

// LoadUniverse returns a store populated with the universe records
func LoadUniverse(t testing.TB) (*store.Store, *registry.Registry, *Universe) {
	t.Helper()
	schema := Schema(t)
	s, _ := NewStore(t, schema)

	u := &Universe{}
	u.Avatar = Create(t, s, schema, "media", map[string]interface{}{"filename": "alice.png", "label": "Alice avatar"})
	u.Home = Create(t, s, schema, "location", map[string]interface{}{"label": "Baker Street", "latitude": 51.52, "longitude": -0.158})

	u.Alice = Create(t, s, schema, "user", map[string]interface{}{
		"username":  "alice",
		"email":     "alice@example.com",
		"age":       34,
		"active":    true,
		"birthDate": "1990-05-17",
		"lastLogin": "2024-03-14T08:15:00Z",
		"avatar":    u.Avatar.ID(),
		"home":      u.Home.ID(),
	})
	u.Bob = Create(t, s, schema, "user", map[string]interface{}{
		"username":  "bob",
		"email":     "bob@example.com",
		"age":       27,
		"active":    false,
		"birthDate": "1997-11-02",
		"lastLogin": "2024-03-15T19:45:00Z",
	})

	u.Fiction = Create(t, s, schema, "tag", map[string]interface{}{"name": "fiction"})
	u.Science = Create(t, s, schema, "tag", map[string]interface{}{"name": "science"})

	u.Dune = Create(t, s, schema, "book", map[string]interface{}{
		"title":       "Dune",
		"pages":       412,
		"publishedAt": "1965-08-01T00:00:00Z",
		"author":      u.Alice.ID(),
		"tags":        []interface{}{u.Fiction.ID(), u.Science.ID()},
	})
	u.Cosmos = Create(t, s, schema, "book", map[string]interface{}{
		"title":       "Cosmos",
		"pages":       365,
		"publishedAt": "1980-10-12T00:00:00Z",
		"author":      u.Bob.ID(),
		"tags":        []interface{}{u.Science.ID()},
	})
	u.Orphans = Create(t, s, schema, "book", map[string]interface{}{
		"title": "Orphans",
		"pages": 120,
	})

	u.Article = Create(t, s, schema, "article", map[string]interface{}{"title": "Hello", "body": "First draft"})
	return s, schema, u
}
