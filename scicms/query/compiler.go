// Package query compiles generic sort/filter/paginate requests into read
// operations for an arbitrary Item.
package query

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/borisblack/scicms-client-sub000/scicms/gql"
	"github.com/borisblack/scicms-client-sub000/types"
)

// Compiler builds read operations against the Items of a Schema
type Compiler struct {
	schema   Schema
	location *time.Location
	logger   *slog.Logger
}

// Option configures a Compiler
type Option func(*Compiler)

// WithLocation sets the zone temporal filters without a zone are read in
func WithLocation(loc *time.Location) Option {
	return func(c *Compiler) {
		c.location = loc
	}
}

// WithLogger sets the logger used for dropped filters
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compiler) {
		c.logger = logger
	}
}

// NewCompiler creates a query compiler
func NewCompiler(schema Schema, opts ...Option) *Compiler {
	c := &Compiler{
		schema:   schema,
		location: time.UTC,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile builds the full read operation for item: projection, filter
// document, sort tokens and pagination.
//
// Malformed filter values (FilterFormatError) drop only their own filter
// and are reported in Operation.FilterErrors; schema violations abort
// compilation. A column predicate and an extra predicate on the same key
// are combined with "and" rather than overwriting each other.
func (c *Compiler) Compile(item *types.Item, req types.QueryRequest, extra types.Filter) (*types.Operation, error) {
	selection, err := Projection(c.schema, item)
	if err != nil {
		return nil, err
	}

	op := &types.Operation{
		Kind:      types.OpFind,
		Item:      item.Name,
		Selection: selection,
		Filters:   types.Filter{},
		Sort:      []string{},
	}

	for _, f := range req.Filters {
		pred, err := c.Predicate(item, f.AttributeID, f.Value)
		if err != nil {
			var formatErr *types.FilterFormatError
			if errors.As(err, &formatErr) {
				c.logger.Warn("filter dropped",
					"item", item.Name,
					"attribute", f.AttributeID,
					"value", f.Value,
					"error", err)
				op.FilterErrors = append(op.FilterErrors, err)
				continue
			}
			return nil, err
		}
		if pred == nil {
			continue
		}
		MergeFilter(op.Filters, f.AttributeID, pred)
	}

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		MergeFilter(op.Filters, key, extra[key])
	}

	for _, s := range req.Sort {
		token, err := sortToken(item, s)
		if err != nil {
			return nil, err
		}
		op.Sort = append(op.Sort, token)
	}

	if req.Pagination != (types.PaginationInput{}) {
		p := req.Pagination
		op.Pagination = &p
	}

	gql.Render(item, op)
	return op, nil
}

// MergeFilter adds pred under key, combining colliding predicates into
// a conjunction.
func MergeFilter(dst types.Filter, key string, pred interface{}) {
	existing, exists := dst[key]
	if key == OpAnd {
		dst[OpAnd] = append(asList(existing), asList(pred)...)
		return
	}
	if !exists {
		dst[key] = pred
		return
	}

	delete(dst, key)
	conj := asList(dst[OpAnd])
	conj = append(conj,
		map[string]interface{}{key: existing},
		map[string]interface{}{key: pred},
	)
	dst[OpAnd] = conj
}

// asList normalizes an "and" operand to a freshly allocated slice, so
// appending never writes into a caller's backing array
func asList(v interface{}) []interface{} {
	switch list := v.(type) {
	case nil:
		return nil
	case []interface{}:
		return append([]interface{}(nil), list...)
	case []map[string]interface{}:
		out := make([]interface{}, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out
	default:
		return []interface{}{v}
	}
}

// sortToken translates a sort entry into "attribute:asc|desc"
func sortToken(item *types.Item, s types.SortSpec) (string, error) {
	attr, ok := item.Attribute(s.AttributeID)
	if !ok {
		return "", &types.SchemaError{Item: item.Name, Attribute: s.AttributeID, Reason: "unknown sort attribute"}
	}
	if attr.Private || attr.IsCollection() {
		return "", &types.SchemaError{Item: item.Name, Attribute: s.AttributeID, Reason: "attribute is not sortable"}
	}
	if s.Descending {
		return s.AttributeID + ":desc", nil
	}
	return s.AttributeID + ":asc", nil
}

// ParseSortToken splits "attribute:asc|desc" back into a SortSpec
func ParseSortToken(token string) types.SortSpec {
	for i := len(token) - 1; i >= 0; i-- {
		if token[i] == ':' {
			return types.SortSpec{AttributeID: token[:i], Descending: token[i+1:] == "desc"}
		}
	}
	return types.SortSpec{AttributeID: token}
}
