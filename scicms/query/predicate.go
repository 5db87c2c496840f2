package query

import (
	"strconv"
	"strings"

	"github.com/borisblack/scicms-client-sub000/types"
)

// Predicate operators of the backend filter vocabulary
const (
	OpContainsi = "containsi"
	OpEq        = "eq"
	OpGte       = "gte"
	OpLte       = "lte"
	OpAnd       = "and"
	OpOr        = "or"
	OpNot       = "not"
)

// maxRelationDepth bounds title-attribute recursion through relations
const maxRelationDepth = 8

var (
	truthyTokens = map[string]bool{"1": true, "true": true, "yes": true, "y": true, "on": true}
	falsyTokens  = map[string]bool{"0": true, "false": true, "no": true, "n": true, "off": true}
)

// ParseBool normalizes a boolean filter token. ok is false for tokens in
// neither the truthy nor the falsy set.
func ParseBool(raw string) (value bool, ok bool) {
	token := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case truthyTokens[token]:
		return true, true
	case falsyTokens[token]:
		return false, true
	default:
		return false, false
	}
}

// Predicate compiles one column filter into a predicate fragment.
// A nil fragment with a nil error means the filter is ignored.
// Errors are either a *types.SchemaError (fatal) or a
// *types.FilterFormatError (scoped to this filter).
func (c *Compiler) Predicate(item *types.Item, attrName, raw string) (interface{}, error) {
	return c.predicate(item, attrName, raw, 0)
}

func (c *Compiler) predicate(item *types.Item, attrName, raw string, depth int) (interface{}, error) {
	attr, ok := item.Attribute(attrName)
	if !ok {
		return nil, &types.SchemaError{Item: item.Name, Attribute: attrName, Reason: "unknown attribute"}
	}
	if attr.Private {
		return nil, &types.SchemaError{Item: item.Name, Attribute: attrName, Reason: "cannot filter on a private attribute"}
	}
	if attr.IsCollection() {
		return nil, &types.SchemaError{Item: item.Name, Attribute: attrName, Reason: "cannot filter on a collection relation"}
	}
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	switch attr.Type.Kind() {
	case types.KindString:
		return contains(raw), nil
	case types.KindNumeric:
		value, err := parseNumber(attr.Type, raw)
		if err != nil {
			return nil, &types.FilterFormatError{Attribute: attrName, Value: raw, Kind: string(attr.Type)}
		}
		return map[string]interface{}{OpEq: value}, nil
	case types.KindBool:
		value, ok := ParseBool(raw)
		if !ok {
			return nil, nil
		}
		return map[string]interface{}{OpEq: value}, nil
	case types.KindTemporal:
		r, err := ParseTemporal(attr.Type, raw, c.location)
		if err != nil {
			return nil, &types.FilterFormatError{Attribute: attrName, Value: raw, Kind: string(attr.Type)}
		}
		return r.Predicate(), nil
	case types.KindMedia:
		return map[string]interface{}{types.MediaFilenameField: contains(raw)}, nil
	case types.KindLocation:
		return map[string]interface{}{types.LocationLabelField: contains(raw)}, nil
	case types.KindRelation:
		if depth >= maxRelationDepth {
			return nil, &types.SchemaError{Item: item.Name, Attribute: attrName, Reason: "title attribute chain is too deep"}
		}
		target, err := c.schema.GetByName(attr.Target)
		if err != nil {
			return nil, err
		}
		inner, err := c.predicate(target, target.TitleAttribute, raw, depth+1)
		if err != nil || inner == nil {
			return nil, err
		}
		return map[string]interface{}{target.TitleAttribute: inner}, nil
	default:
		return nil, &types.SchemaError{Item: item.Name, Attribute: attrName, Reason: "unknown attribute type " + string(attr.Type)}
	}
}

// contains builds the case-insensitive substring predicate
func contains(raw string) map[string]interface{} {
	return map[string]interface{}{OpContainsi: strings.TrimSpace(raw)}
}

// parseNumber converts a raw filter value for a numeric attribute type
func parseNumber(t types.AttrType, raw string) (interface{}, error) {
	value := strings.TrimSpace(raw)
	switch t {
	case types.TypeInt, types.TypeLong:
		return strconv.ParseInt(value, 10, 64)
	default:
		return strconv.ParseFloat(strings.Replace(value, ",", ".", 1), 64)
	}
}
