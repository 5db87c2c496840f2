package mutation

import (
	"fmt"

	"github.com/borisblack/scicms-client-sub000/scicms/query"
	"github.com/borisblack/scicms-client-sub000/types"
)

// PrepareValues converts form values into the backend's input shape:
// relation, media and location values become ids, boolean tokens become
// booleans, and read-only or inverse-side attributes are dropped.
func PrepareValues(kind types.OperationKind, item *types.Item, data map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(data))

	for name, value := range data {
		attr, ok := item.Attribute(name)
		if !ok {
			return nil, &types.SchemaError{Item: item.Name, Attribute: name, Reason: "unknown attribute"}
		}
		if attr.ReadOnly {
			continue
		}

		switch attr.Type.Kind() {
		case types.KindRelation:
			if attr.MappedBy != "" && attr.InversedBy != "" {
				return nil, &types.SchemaError{Item: item.Name, Attribute: name, Reason: "mappedBy and inversedBy are mutually exclusive"}
			}
			if attr.IsCollection() {
				if attr.MappedBy != "" {
					continue
				}
				ids, err := relationIDs(value)
				if err != nil {
					return nil, &types.SchemaError{Item: item.Name, Attribute: name, Reason: err.Error()}
				}
				out[name] = ids
				continue
			}
			out[name] = relationID(value)
		case types.KindMedia, types.KindLocation:
			out[name] = relationID(value)
		case types.KindBool:
			if s, ok := value.(string); ok {
				b, valid := query.ParseBool(s)
				if !valid {
					return nil, &types.ValidationError{Operation: kind, Item: item.Name, Field: name, Reason: fmt.Sprintf("%q is not a boolean", s)}
				}
				out[name] = b
				continue
			}
			out[name] = value
		case types.KindString, types.KindNumeric, types.KindTemporal:
			out[name] = value
		case types.KindInvalid:
			return nil, &types.SchemaError{Item: item.Name, Attribute: name, Reason: "unknown attribute type " + string(attr.Type)}
		}
	}
	return out, nil
}

// relationID extracts a target id from a plain id or a shallow relation value
func relationID(value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return v
	case map[string]interface{}:
		var id string
		if inner, ok := v["data"].(map[string]interface{}); ok {
			id, _ = inner[types.AttrID].(string)
		} else {
			id, _ = v[types.AttrID].(string)
		}
		if id == "" {
			return nil
		}
		return id
	case types.ItemData:
		return relationID(map[string]interface{}(v))
	default:
		return fmt.Sprint(v)
	}
}

// relationIDs extracts target ids from a collection relation value
func relationIDs(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return []string{}, nil
	case []string:
		return v, nil
	case []interface{}:
		ids := make([]string, 0, len(v))
		for _, elem := range v {
			id, ok := relationID(elem).(string)
			if !ok {
				return nil, fmt.Errorf("invalid relation element %v", elem)
			}
			ids = append(ids, id)
		}
		return ids, nil
	case map[string]interface{}:
		// {"data": [...]} envelope
		return relationIDs(v["data"])
	default:
		return nil, fmt.Errorf("invalid collection value of type %T", value)
	}
}
