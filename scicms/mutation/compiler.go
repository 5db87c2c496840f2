// Package mutation compiles lifecycle transitions (create, version,
// localize, update, delete, purge, lock, unlock, promote) into write
// operations. Every precondition is checked before an operation is
// produced, so a rejected intent never reaches the network.
package mutation

import (
	"github.com/borisblack/scicms-client-sub000/scicms/gql"
	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/types"
)

// Compiler builds write operations against the Items of a Schema
type Compiler struct {
	schema query.Schema
}

// NewCompiler creates a mutation compiler
func NewCompiler(schema query.Schema) *Compiler {
	return &Compiler{schema: schema}
}

// Compile validates the preconditions of kind for item and builds the
// operation. Violations are returned as *types.ValidationError, illegal
// data keys as *types.SchemaError.
func (c *Compiler) Compile(kind types.OperationKind, item *types.Item, args types.MutationArgs) (*types.Operation, error) {
	if err := checkPreconditions(kind, item, args); err != nil {
		return nil, err
	}

	selection, err := query.Projection(c.schema, item)
	if err != nil {
		return nil, err
	}

	op := &types.Operation{
		Kind:      kind,
		Item:      item.Name,
		Selection: selection,
		ID:        args.ID,
	}

	switch kind {
	case types.OpCreate, types.OpCreateVersion, types.OpCreateLocalization, types.OpUpdate:
		data, err := PrepareValues(kind, item, args.Data)
		if err != nil {
			return nil, err
		}
		if kind == types.OpCreate {
			if err := checkRequired(item, data); err != nil {
				return nil, err
			}
		}
		op.Data = data
		op.MajorRev = args.MajorRev
		op.Locale = args.Locale
		op.CopyCollectionRelations = args.CopyCollectionRelations
	case types.OpDelete, types.OpPurge:
		op.DeletingStrategy = args.DeletingStrategy
		if op.DeletingStrategy == "" {
			op.DeletingStrategy = types.NoAction
		}
	case types.OpPromote:
		op.State = args.State
	case types.OpLock, types.OpUnlock:
		// id only
	}

	gql.Render(item, op)
	return op, nil
}

// checkPreconditions enforces the per-operation rules
func checkPreconditions(kind types.OperationKind, item *types.Item, args types.MutationArgs) error {
	fail := func(field, reason string) error {
		return &types.ValidationError{Operation: kind, Item: item.Name, Field: field, Reason: reason}
	}

	if kind != types.OpCreate && args.ID == "" {
		return fail(types.AttrID, "entity has not been saved yet")
	}

	switch kind {
	case types.OpCreate:
		if item.ReadOnly {
			return fail("", "item is read-only")
		}
	case types.OpCreateVersion:
		if !item.Versioned {
			return fail("", "item is not versioned")
		}
		if item.ManualVersioning && args.MajorRev == "" {
			return fail(types.AttrMajorRev, "major revision is required for manual versioning")
		}
		if !item.ManualVersioning && args.MajorRev != "" {
			return fail(types.AttrMajorRev, "major revision is assigned automatically")
		}
		if args.Locale != "" && !item.Localized {
			return fail(types.AttrLocale, "item is not localized")
		}
	case types.OpCreateLocalization:
		if !item.Localized {
			return fail("", "item is not localized")
		}
		if args.Locale == "" {
			return fail(types.AttrLocale, "locale is required")
		}
	case types.OpUpdate, types.OpUnlock:
		// existence only
	case types.OpDelete, types.OpPurge:
		if args.DeletingStrategy != "" && !args.DeletingStrategy.Valid() {
			return fail("deletingStrategy", "unknown deleting strategy "+string(args.DeletingStrategy))
		}
	case types.OpLock:
		if item.NotLockable {
			return fail("", "item is not lockable")
		}
	case types.OpPromote:
		if args.Lifecycle == "" {
			return fail(types.AttrLifecycle, "entity has no lifecycle")
		}
		if args.State == "" {
			return fail(types.AttrState, "target state is required")
		}
	default:
		return fail("", "unknown operation")
	}
	return nil
}

// checkRequired rejects a create that omits a required writable attribute
func checkRequired(item *types.Item, data map[string]interface{}) error {
	for _, name := range item.AttributeNames() {
		attr := item.Spec.Attributes[name]
		if !attr.Required || attr.ReadOnly || (attr.IsCollection() && attr.MappedBy != "") {
			continue
		}
		if isBlank(data[name]) {
			return &types.ValidationError{Operation: types.OpCreate, Item: item.Name, Field: name, Reason: "value is required"}
		}
	}
	return nil
}

func isBlank(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []string:
		return len(x) == 0
	default:
		return false
	}
}
