// Package scicms is the core of a schema-driven admin console. A Console
// compiles generic read and write intents against the Items of a registry,
// sends them through a Transport, and keeps open views in sync through the
// view-identity manager and the mediator.
package scicms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/borisblack/scicms-client-sub000/scicms/identity"
	"github.com/borisblack/scicms-client-sub000/scicms/mediator"
	"github.com/borisblack/scicms-client-sub000/scicms/mutation"
	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/scicms/registry"
	"github.com/borisblack/scicms-client-sub000/scicms/storage"
	"github.com/borisblack/scicms-client-sub000/types"
)

// ErrSuperseded is returned by Find when a newer request for the same view
// canceled the running one. It matches context.Canceled.
var ErrSuperseded = fmt.Errorf("request superseded by a newer one: %w", context.Canceled)

// Transport executes compiled operations. The remote GraphQL client and the
// local store both implement it.
type Transport interface {
	Execute(ctx context.Context, op *types.Operation) (*types.Response, error)
}

// Auth identifies the current user
type Auth interface {
	CurrentUserID() string
}

// StaticAuth is an Auth with a fixed user id
type StaticAuth string

// CurrentUserID implements Auth
func (a StaticAuth) CurrentUserID() string { return string(a) }

// Console ties the compilers, the transport and the view bookkeeping
// together
type Console struct {
	schema    *registry.Registry
	queries   *query.Compiler
	mutations *mutation.Compiler
	transport Transport

	auth     Auth
	mediator *mediator.Mediator
	views    *identity.Manager
	metrics  MetricsRecorder
	logger   *slog.Logger
	printer  *message.Printer

	location *time.Location
	opLogger *slog.Logger

	lock     *storage.LockManager
	inflight map[string]*request
	seq      uint64
}

type request struct {
	seq    uint64
	cancel context.CancelFunc
}

// Option configures a Console
type Option func(*Console)

// WithAuth sets the source of the current user id
func WithAuth(auth Auth) Option {
	return func(c *Console) {
		c.auth = auth
	}
}

// WithLogger sets the console logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

// WithMetrics sets the recorder of backend round trips
func WithMetrics(m MetricsRecorder) Option {
	return func(c *Console) {
		c.metrics = m
	}
}

// WithLocation sets the zone temporal filters are read in
func WithLocation(loc *time.Location) Option {
	return func(c *Console) {
		c.location = loc
	}
}

// WithLanguage sets the language of user-facing error messages
func WithLanguage(tag language.Tag) Option {
	return func(c *Console) {
		c.printer = message.NewPrinter(tag)
	}
}

// WithOperationLogger logs every operation sent to the backend, with its
// document and variables, to logger
func WithOperationLogger(logger *slog.Logger) Option {
	return func(c *Console) {
		c.opLogger = logger
	}
}

// New creates a console over schema that sends operations to transport
func New(schema *registry.Registry, transport Transport, opts ...Option) *Console {
	c := &Console{
		schema:    schema,
		transport: transport,
		auth:      StaticAuth(""),
		metrics:   noopMetrics{},
		logger:    slog.Default(),
		printer:   message.NewPrinter(language.English),
		location:  time.UTC,
		lock:      storage.NewLockManager(),
		inflight:  make(map[string]*request),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queries = query.NewCompiler(schema, query.WithLocation(c.location), query.WithLogger(c.logger))
	c.mutations = mutation.NewCompiler(schema)
	c.mediator = mediator.New(mediator.WithLogger(c.logger))
	c.views = identity.NewManager(c.mediator)
	return c
}

// Schema returns the registry the console compiles against
func (c *Console) Schema() *registry.Registry { return c.schema }

// Mediator returns the observer registry of open views
func (c *Console) Mediator() *mediator.Mediator { return c.mediator }

// Views returns the view-identity manager
func (c *Console) Views() *identity.Manager { return c.views }

// CompileQuery builds the read operation for a request without running it
func (c *Console) CompileQuery(itemName string, req types.QueryRequest, extra types.Filter) (*types.Operation, error) {
	item, err := c.schema.GetByName(itemName)
	if err != nil {
		return nil, err
	}
	return c.queries.Compile(item, req, extra)
}

// CompileMutation builds a write operation without running it
func (c *Console) CompileMutation(kind types.OperationKind, itemName string, args types.MutationArgs) (*types.Operation, error) {
	item, err := c.schema.GetByName(itemName)
	if err != nil {
		return nil, err
	}
	return c.mutations.Compile(kind, item, args)
}

// Find runs a read for the view viewKey. A newer Find for the same view
// cancels this one, which then returns ErrSuperseded. An empty viewKey
// opts out of supersession. Filters with malformed values are left out of
// the read and reported, localized, in Page.FilterErrors.
func (c *Console) Find(ctx context.Context, viewKey, itemName string, req types.QueryRequest, extra types.Filter) (*types.Page, error) {
	op, err := c.CompileQuery(itemName, req, extra)
	if err != nil {
		return nil, err
	}

	ctx, done := c.track(ctx, viewKey)
	defer done()

	resp, err := c.dispatch(ctx, op)
	if err != nil {
		if errors.Is(err, context.Canceled) && errors.Is(context.Cause(ctx), ErrSuperseded) {
			return nil, ErrSuperseded
		}
		return nil, err
	}

	page := &types.Page{Data: resp.Data}
	if resp.Pagination != nil {
		page.Pagination = *resp.Pagination
	} else {
		n := len(resp.Data)
		page.Pagination = types.Pagination{Page: 1, PageCount: 1, PageSize: n, Total: n}
	}
	page.FilterErrors = c.localizeFilterErrors(op.FilterErrors)
	return page, nil
}

// localizeFilterErrors copies the dropped-filter errors of a compiled read
// with their user-facing text in the console language
func (c *Console) localizeFilterErrors(errs []error) []error {
	if len(errs) == 0 {
		return nil
	}
	out := make([]error, 0, len(errs))
	for _, err := range errs {
		var formatErr *types.FilterFormatError
		if !errors.As(err, &formatErr) {
			out = append(out, err)
			continue
		}
		localized := *formatErr
		localized.Message = c.printer.Sprintf(msgFilterFormat, formatErr.Attribute, formatErr.Value)
		out = append(out, &localized)
	}
	return out
}

// track registers a cancelable request for viewKey, canceling the one it
// replaces. The returned func must be called when the request ends.
func (c *Console) track(parent context.Context, viewKey string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	if viewKey == "" {
		return ctx, func() { cancel(nil) }
	}

	var seq uint64
	c.lock.Write(func() {
		c.seq++
		seq = c.seq
		if prev, ok := c.inflight[viewKey]; ok {
			prev.cancel()
		}
		c.inflight[viewKey] = &request{seq: seq, cancel: func() { cancel(ErrSuperseded) }}
	})

	return ctx, func() {
		c.lock.Write(func() {
			if cur, ok := c.inflight[viewKey]; ok && cur.seq == seq {
				delete(c.inflight, viewKey)
			}
		})
		cancel(nil)
	}
}

// Result is the outcome of a write
type Result struct {
	// Key is the view key after the operation; drafts become id-based
	Key string
	// Data is the affected record
	Data types.ItemData
	// Removed lists every record a purge deleted
	Removed []types.ItemData
	// Success is false when a lock or unlock was refused
	Success bool
}

// Create persists a new record. When viewKey is an open draft view it is
// rewritten to the key of the new record.
func (c *Console) Create(ctx context.Context, viewKey, itemName string, data map[string]interface{}) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpCreate, itemName, types.MutationArgs{Data: data})
}

// CreateVersion creates a new major revision of record id
func (c *Console) CreateVersion(ctx context.Context, viewKey, itemName, id string, data map[string]interface{}, majorRev, locale string, copyCollectionRelations bool) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpCreateVersion, itemName, types.MutationArgs{
		ID: id, Data: data, MajorRev: majorRev, Locale: locale, CopyCollectionRelations: copyCollectionRelations,
	})
}

// CreateLocalization creates a locale variant of record id
func (c *Console) CreateLocalization(ctx context.Context, viewKey, itemName, id string, data map[string]interface{}, locale string, copyCollectionRelations bool) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpCreateLocalization, itemName, types.MutationArgs{
		ID: id, Data: data, Locale: locale, CopyCollectionRelations: copyCollectionRelations,
	})
}

// Update modifies record id
func (c *Console) Update(ctx context.Context, viewKey, itemName, id string, data map[string]interface{}) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpUpdate, itemName, types.MutationArgs{ID: id, Data: data})
}

// Delete removes record id
func (c *Console) Delete(ctx context.Context, viewKey, itemName, id string, strategy types.DeletingStrategy) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpDelete, itemName, types.MutationArgs{ID: id, DeletingStrategy: strategy})
}

// Purge removes every version and localization of record id
func (c *Console) Purge(ctx context.Context, viewKey, itemName, id string, strategy types.DeletingStrategy) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpPurge, itemName, types.MutationArgs{ID: id, DeletingStrategy: strategy})
}

// Lock acquires the edit lock on record id
func (c *Console) Lock(ctx context.Context, viewKey, itemName, id string) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpLock, itemName, types.MutationArgs{ID: id})
}

// Unlock releases the edit lock on record id
func (c *Console) Unlock(ctx context.Context, viewKey, itemName, id string) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpUnlock, itemName, types.MutationArgs{ID: id})
}

// Promote moves record id to a lifecycle state
func (c *Console) Promote(ctx context.Context, viewKey, itemName, id, lifecycle, state string) (*Result, error) {
	return c.Mutate(ctx, viewKey, types.OpPromote, itemName, types.MutationArgs{ID: id, Lifecycle: lifecycle, State: state})
}

// Mutate compiles and runs a write, then updates the view identity and
// notifies the observers of viewKey. Compilation failures are returned
// before anything is sent.
func (c *Console) Mutate(ctx context.Context, viewKey string, kind types.OperationKind, itemName string, args types.MutationArgs) (*Result, error) {
	op, err := c.CompileMutation(kind, itemName, args)
	if err != nil {
		c.logger.Warn("operation rejected", "op", string(kind), "item", itemName, "error", err)
		return nil, err
	}

	resp, err := c.dispatch(ctx, op)
	if err != nil {
		return nil, err
	}

	res := &Result{Key: viewKey, Success: true}
	if len(resp.Data) > 0 {
		res.Data = resp.Data[0]
	}
	if resp.Success != nil {
		res.Success = *resp.Success
	}

	switch kind {
	case types.OpCreate, types.OpCreateVersion, types.OpCreateLocalization:
		res.Key = c.rewrite(viewKey, res.Data.ID())
		c.notify(res.Key, mediator.Update, res.Data.ID())
	case types.OpUpdate, types.OpPromote:
		c.notify(viewKey, mediator.Update, args.ID)
	case types.OpLock, types.OpUnlock:
		if res.Success {
			c.notify(viewKey, mediator.Update, args.ID)
		}
	case types.OpDelete:
		c.notify(viewKey, mediator.Delete, args.ID)
	case types.OpPurge:
		res.Removed = resp.Data
		res.Data = nil
		for _, row := range resp.Data {
			if row.ID() == args.ID {
				res.Data = row
			}
		}
		c.notify(viewKey, mediator.Delete, args.ID)
	}
	return res, nil
}

// rewrite moves an open view to the key of id; unknown views keep their key
func (c *Console) rewrite(viewKey, id string) string {
	if viewKey == "" || id == "" {
		return viewKey
	}
	if _, ok := c.views.Lookup(viewKey); !ok {
		return viewKey
	}
	newKey, err := c.views.RewriteKey(viewKey, id)
	if err != nil {
		c.logger.Warn("failed to rewrite view key", "key", viewKey, "id", id, "error", err)
		return viewKey
	}
	return newKey
}

func (c *Console) notify(viewKey string, op mediator.Operation, id string) {
	if viewKey == "" {
		return
	}
	c.mediator.RunObservableCallbacks(viewKey, op, id)
}

// dispatch sends op, records metrics and converts failures into a
// localized *types.TransportError. Cancellation is passed through as is.
func (c *Console) dispatch(ctx context.Context, op *types.Operation) (*types.Response, error) {
	if c.opLogger != nil {
		c.opLogger.Info("operation",
			"op", string(op.Kind),
			"item", op.Item,
			"document", op.Document,
			"variables", op.Variables)
	}

	start := time.Now()
	resp, err := c.transport.Execute(ctx, op)
	success := err == nil && resp != nil && len(resp.Errors) == 0
	c.metrics.Observe(ctx, string(op.Kind), success, time.Since(start))

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		return nil, err
	case err != nil:
		key := msgRequestFailed
		if errors.Is(err, context.DeadlineExceeded) {
			key = msgRequestTimeout
		}
		return nil, c.fail(op, key, nil, err)
	case resp == nil:
		return nil, c.fail(op, msgRequestFailed, nil, fmt.Errorf("empty response"))
	case len(resp.Errors) > 0:
		return nil, c.fail(op, msgRequestDenied, resp.Errors, nil)
	}
	return resp, nil
}

func (c *Console) fail(op *types.Operation, key string, descriptors []types.ErrorDescriptor, cause error) error {
	terr := &types.TransportError{
		Operation:   op.Kind,
		Item:        op.Item,
		Message:     c.printer.Sprintf(key),
		Descriptors: descriptors,
		Cause:       cause,
	}
	c.logger.Error("operation failed", "op", string(op.Kind), "item", op.Item, "detail", terr.Detail())
	return terr
}

// IsLockedByMe reports whether data is locked by the current user
func (c *Console) IsLockedByMe(data types.ItemData) bool {
	by := data.LockedBy()
	return by != "" && by == c.auth.CurrentUserID()
}

// OpenView opens a view of itemName and returns its key. An empty id opens
// a draft.
func (c *Console) OpenView(itemName, kind, id string, params map[string]interface{}) (string, error) {
	if _, err := c.schema.GetByName(itemName); err != nil {
		return "", err
	}
	return c.views.Open(itemName, kind, id, params), nil
}

// CloseView closes a view and drops its bindings and in-flight request
func (c *Console) CloseView(viewKey string) {
	c.lock.Write(func() {
		if req, ok := c.inflight[viewKey]; ok {
			req.cancel()
			delete(c.inflight, viewKey)
		}
	})
	c.views.Close(viewKey)
}
