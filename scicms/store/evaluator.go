package store

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/borisblack/scicms-client-sub000/internal/validation"
	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/types"
)

// maxFilterDepth bounds relation traversal in filter documents
const maxFilterDepth = 8

// comparableLayouts are tried, in order, when comparing two strings as
// temporal values
var comparableLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	query.DateLayout,
	query.TimeLayout,
}

// matches reports whether row satisfies the filter document. Unknown
// attributes and operators never match.
func (s *Store) matches(item *types.Item, row types.ItemData, filter map[string]interface{}, depth int) bool {
	if depth > maxFilterDepth {
		return false
	}
	for key, cond := range filter {
		switch key {
		case query.OpAnd:
			for _, sub := range asList(cond) {
				if !s.matches(item, row, asMap(sub), depth) {
					return false
				}
			}
		case query.OpOr:
			list := asList(cond)
			if len(list) == 0 {
				continue
			}
			found := false
			for _, sub := range list {
				if s.matches(item, row, asMap(sub), depth) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case query.OpNot:
			if s.matches(item, row, asMap(cond), depth) {
				return false
			}
		default:
			attr, ok := item.Attribute(key)
			if !ok {
				return false
			}
			if target := targetItem(attr); target != "" {
				targetDesc, err := s.schema.GetByName(target)
				if err != nil {
					return false
				}
				ref := s.findRow(target, row.RelationID(key))
				if ref == nil || !s.matches(targetDesc, ref, asMap(cond), depth+1) {
					return false
				}
				continue
			}
			if !matchValue(row[key], asMap(cond)) {
				return false
			}
		}
	}
	return true
}

// matchValue applies an operator map such as {"gte": a, "lte": b}
func matchValue(value interface{}, ops map[string]interface{}) bool {
	if len(ops) == 0 {
		return false
	}
	for op, arg := range ops {
		switch op {
		case query.OpContainsi:
			if value == nil {
				return false
			}
			fold := cases.Fold()
			if !strings.Contains(fold.String(fmt.Sprint(value)), fold.String(fmt.Sprint(arg))) {
				return false
			}
		case query.OpEq:
			if value == nil || compareValues(value, arg) != 0 {
				return false
			}
		case "ne":
			if value != nil && compareValues(value, arg) == 0 {
				return false
			}
		case query.OpGte:
			if value == nil || compareValues(value, arg) < 0 {
				return false
			}
		case query.OpLte:
			if value == nil || compareValues(value, arg) > 0 {
				return false
			}
		case "null":
			want, _ := arg.(bool)
			if (value == nil) != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compareValues orders two scalar values. Numbers compare numerically,
// strings that parse as the same temporal layout compare as instants, and
// anything else compares by its string form.
func compareValues(a, b interface{}) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		default:
			return 1
		}
	}

	if x, ok := toFloat(a); ok {
		if y, ok := toFloat(b); ok {
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			default:
				return 0
			}
		}
	}

	if x, ok := a.(bool); ok {
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			default:
				return 1
			}
		}
	}

	sa, sb := fmt.Sprint(a), fmt.Sprint(b)
	if ta, tb, ok := parseBoth(sa, sb); ok {
		return ta.Compare(tb)
	}
	return strings.Compare(sa, sb)
}

func parseBoth(a, b string) (time.Time, time.Time, bool) {
	for _, layout := range comparableLayouts {
		ta, errA := time.Parse(layout, a)
		if errA != nil {
			continue
		}
		tb, errB := time.Parse(layout, b)
		if errB != nil {
			continue
		}
		return ta, tb, true
	}
	return time.Time{}, time.Time{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// targetItem returns the item a reference-like attribute points at, or ""
// for scalars
func targetItem(attr types.Attribute) string {
	switch attr.Type.Kind() {
	case types.KindRelation:
		return attr.Target
	case types.KindMedia:
		return validation.MediaItemName
	case types.KindLocation:
		return validation.LocationItemName
	default:
		return ""
	}
}

func asMap(v interface{}) map[string]interface{} {
	switch m := v.(type) {
	case types.Filter:
		return m
	case map[string]interface{}:
		return m
	case types.ItemData:
		return m
	default:
		return nil
	}
}

func asList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []types.Filter:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	default:
		return nil
	}
}

// idsOf reads a stored collection relation value
func idsOf(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, e := range l {
			if id, ok := e.(string); ok {
				out = append(out, id)
			}
		}
		return out
	default:
		return nil
	}
}
