package query

import (
	"github.com/borisblack/scicms-client-sub000/internal/validation"
	"github.com/borisblack/scicms-client-sub000/types"
)

// Schema is the read-only view of the Schema Registry the compilers need
type Schema interface {
	GetByName(name string) (*types.Item, error)
}

// Projection enumerates the response fields of an Item: every public,
// single-valued attribute, with relation, media and location attributes
// reduced to the shallow fields of the referenced record.
func Projection(schema Schema, item *types.Item) ([]types.Field, error) {
	names := item.AttributeNames()
	fields := make([]types.Field, 0, len(names))

	for _, name := range names {
		attr := item.Spec.Attributes[name]
		if attr.Private || attr.IsCollection() {
			continue
		}

		switch attr.Type.Kind() {
		case types.KindString, types.KindNumeric, types.KindBool, types.KindTemporal:
			fields = append(fields, types.Field{Name: name})
		case types.KindRelation:
			target, err := schema.GetByName(attr.Target)
			if err != nil {
				return nil, err
			}
			fields = append(fields, types.Field{Name: name, Sub: subFields(types.AttrID, target.TitleAttribute)})
		case types.KindMedia:
			media, err := schema.GetByName(validation.MediaItemName)
			if err != nil {
				return nil, err
			}
			fields = append(fields, types.Field{Name: name, Sub: subFields(types.AttrID, media.TitleAttribute, types.MediaFilenameField)})
		case types.KindLocation:
			fields = append(fields, types.Field{Name: name, Sub: []string{
				types.AttrID, types.LocationLatitudeField, types.LocationLongField, types.LocationLabelField,
			}})
		case types.KindInvalid:
			return nil, &types.SchemaError{Item: item.Name, Attribute: name, Reason: "unknown attribute type " + string(attr.Type)}
		}
	}
	return fields, nil
}

// subFields builds a de-duplicated field list preserving order
func subFields(names ...string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
