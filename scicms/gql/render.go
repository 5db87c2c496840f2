// Package gql renders compiled operations as the GraphQL documents and
// variables the remote backend expects.
package gql

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/borisblack/scicms-client-sub000/types"
)

// title upper-cases the first letter. Casers are stateful, so one is
// created per call.
func title(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}

// TypeName returns the GraphQL type name of an item ("user" -> "User")
func TypeName(item *types.Item) string {
	return title(item.Name)
}

// FieldName returns the root field an operation is executed under
func FieldName(item *types.Item, kind types.OperationKind) string {
	name := TypeName(item)
	switch kind {
	case types.OpFind:
		return item.PluralName
	case types.OpCreateVersion:
		return "create" + name + "Version"
	case types.OpCreateLocalization:
		return "create" + name + "Localization"
	default:
		return string(kind) + name
	}
}

// variable declares one operation argument
type variable struct {
	name    string
	gqlType string
	value   interface{}
}

// Render fills op.Field, op.Document and op.Variables from the
// structured part of the operation.
func Render(item *types.Item, op *types.Operation) {
	op.Field = FieldName(item, op.Kind)
	typeName := TypeName(item)

	var vars []variable
	switch op.Kind {
	case types.OpFind:
		vars = []variable{
			{"sort", "[String]", op.Sort},
			{"filters", typeName + "FiltersInput", map[string]interface{}(op.Filters)},
			{"pagination", "PaginationInput", op.Pagination},
		}
	case types.OpCreate:
		vars = []variable{
			{"data", typeName + "Input!", op.Data},
		}
	case types.OpCreateVersion:
		vars = []variable{
			{"id", "ID!", op.ID},
			{"data", typeName + "Input!", op.Data},
			{"majorRev", "String", optional(op.MajorRev)},
			{"locale", "String", optional(op.Locale)},
			{"copyCollectionRelations", "Boolean", op.CopyCollectionRelations},
		}
	case types.OpCreateLocalization:
		vars = []variable{
			{"id", "ID!", op.ID},
			{"data", typeName + "Input!", op.Data},
			{"locale", "String!", op.Locale},
			{"copyCollectionRelations", "Boolean", op.CopyCollectionRelations},
		}
	case types.OpUpdate:
		vars = []variable{
			{"id", "ID!", op.ID},
			{"data", typeName + "Input!", op.Data},
		}
	case types.OpDelete, types.OpPurge:
		vars = []variable{
			{"id", "ID!", op.ID},
			{"deletingStrategy", "DeletingStrategy!", string(op.DeletingStrategy)},
		}
	case types.OpLock, types.OpUnlock:
		vars = []variable{
			{"id", "ID!", op.ID},
		}
	case types.OpPromote:
		vars = []variable{
			{"id", "ID!", op.ID},
			{"state", "String!", op.State},
		}
	}

	op.Variables = make(map[string]interface{}, len(vars))
	for _, v := range vars {
		op.Variables[v.name] = v.value
	}
	opName := op.Field
	if op.Kind == types.OpFind {
		opName = "find" + title(item.PluralName)
	}
	op.Document = document(op, opName, vars)
}

// optional maps an empty string to a GraphQL null
func optional(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// document assembles the operation text
func document(op *types.Operation, opName string, vars []variable) string {
	var b strings.Builder

	keyword := "mutation"
	if op.Kind == types.OpFind {
		keyword = "query"
	}

	decls := make([]string, len(vars))
	args := make([]string, len(vars))
	for i, v := range vars {
		decls[i] = fmt.Sprintf("$%s: %s", v.name, v.gqlType)
		args[i] = fmt.Sprintf("%s: $%s", v.name, v.name)
	}

	fmt.Fprintf(&b, "%s %s(%s) {\n", keyword, opName, strings.Join(decls, ", "))
	fmt.Fprintf(&b, "  %s(%s) {\n", op.Field, strings.Join(args, ", "))

	if op.Kind == types.OpLock || op.Kind == types.OpUnlock {
		b.WriteString("    success\n")
	}
	b.WriteString("    data {\n")
	writeSelection(&b, op.Selection, "      ")
	b.WriteString("    }\n")
	if op.Kind == types.OpFind || op.Kind == types.OpPurge {
		b.WriteString("    meta {\n")
		b.WriteString("      pagination {\n")
		b.WriteString("        page\n        pageCount\n        pageSize\n        total\n")
		b.WriteString("      }\n")
		b.WriteString("    }\n")
	}
	b.WriteString("  }\n")
	b.WriteString("}\n")
	return b.String()
}

// writeSelection renders projection fields; referenced records are
// wrapped in their shallow {data {...}} envelope.
func writeSelection(b *strings.Builder, fields []types.Field, indent string) {
	for _, f := range fields {
		if len(f.Sub) == 0 {
			fmt.Fprintf(b, "%s%s\n", indent, f.Name)
			continue
		}
		fmt.Fprintf(b, "%s%s {\n", indent, f.Name)
		fmt.Fprintf(b, "%s  data {\n", indent)
		for _, sub := range f.Sub {
			fmt.Fprintf(b, "%s    %s\n", indent, sub)
		}
		fmt.Fprintf(b, "%s  }\n", indent)
		fmt.Fprintf(b, "%s}\n", indent)
	}
}
