package validation

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/borisblack/scicms-client-sub000/types"
)

// Item names backing media and location attributes
const (
	MediaItemName    = "media"
	LocationItemName = "location"
)

var identPattern = regexp.MustCompile(`^[a-z][A-Za-z0-9]*$`)

// Validate checks a complete set of Item descriptors for consistency.
// Illegal configurations are reported once here, at load time, so the
// compilers can rely on them without re-checking at every call site.
func Validate(items map[string]*types.Item) error {
	names := make([]string, 0, len(items))
	for name := range items {
		names = append(names, name)
	}
	sort.Strings(names)

	plurals := make(map[string]string)
	for _, name := range names {
		item := items[name]
		if err := validateItem(item); err != nil {
			return err
		}
		if other, exists := plurals[item.PluralName]; exists {
			return &types.SchemaError{Item: name, Reason: fmt.Sprintf("plural name %q is already used by %q", item.PluralName, other)}
		}
		plurals[item.PluralName] = name

		for _, attrName := range item.AttributeNames() {
			attr := item.Spec.Attributes[attrName]
			if err := validateAttribute(items, item, attrName, attr); err != nil {
				return err
			}
		}
	}
	return nil
}

// validateItem checks item-level flags and the title attribute
func validateItem(item *types.Item) error {
	if !identPattern.MatchString(item.Name) {
		return &types.SchemaError{Item: item.Name, Reason: "item name must be a lower camel case identifier"}
	}
	if !identPattern.MatchString(item.PluralName) {
		return &types.SchemaError{Item: item.Name, Reason: fmt.Sprintf("invalid plural name %q", item.PluralName)}
	}
	if item.PluralName == item.Name {
		return &types.SchemaError{Item: item.Name, Reason: "plural name must differ from name"}
	}
	if item.ManualVersioning && !item.Versioned {
		return &types.SchemaError{Item: item.Name, Reason: "manualVersioning requires versioned"}
	}

	title, ok := item.Attribute(item.TitleAttribute)
	if !ok {
		return &types.SchemaError{Item: item.Name, Attribute: item.TitleAttribute, Reason: "title attribute is not defined"}
	}
	if title.Private || title.IsCollection() {
		return &types.SchemaError{Item: item.Name, Attribute: item.TitleAttribute, Reason: "title attribute must be public and single-valued"}
	}
	return nil
}

// validateAttribute checks type-specific facets of one attribute
func validateAttribute(items map[string]*types.Item, item *types.Item, name string, attr types.Attribute) error {
	fail := func(reason string, args ...interface{}) error {
		return &types.SchemaError{Item: item.Name, Attribute: name, Reason: fmt.Sprintf(reason, args...)}
	}

	if !identPattern.MatchString(name) {
		return fail("attribute name must be a lower camel case identifier")
	}
	if attr.Type != types.TypeRelation && (attr.RelType != "" || attr.MappedBy != "" || attr.InversedBy != "") {
		return fail("relation facets on a %s attribute", attr.Type)
	}

	switch attr.Type.Kind() {
	case types.KindString:
		if attr.Type == types.TypeEnum && len(attr.EnumSet) == 0 {
			return fail("enum attribute must declare enumSet")
		}
		if attr.Length < 0 {
			return fail("negative length")
		}
	case types.KindNumeric:
		if attr.MinRange != nil && attr.MaxRange != nil && *attr.MinRange > *attr.MaxRange {
			return fail("minRange %v exceeds maxRange %v", *attr.MinRange, *attr.MaxRange)
		}
		if attr.Type == types.TypeDecimal && attr.Scale > attr.Precision && attr.Precision > 0 {
			return fail("scale %d exceeds precision %d", attr.Scale, attr.Precision)
		}
	case types.KindBool, types.KindTemporal:
		// no facets
	case types.KindMedia:
		if err := requireReferencedItem(items, item, name, MediaItemName, types.MediaFilenameField); err != nil {
			return err
		}
	case types.KindLocation:
		if err := requireReferencedItem(items, item, name, LocationItemName, types.LocationLabelField); err != nil {
			return err
		}
	case types.KindRelation:
		return validateRelation(items, item, name, attr)
	case types.KindInvalid:
		return fail("unknown attribute type %q", attr.Type)
	}
	return nil
}

// validateRelation checks cardinality, target and the owning side
func validateRelation(items map[string]*types.Item, item *types.Item, name string, attr types.Attribute) error {
	fail := func(reason string, args ...interface{}) error {
		return &types.SchemaError{Item: item.Name, Attribute: name, Reason: fmt.Sprintf(reason, args...)}
	}

	switch attr.RelType {
	case types.OneToOne, types.OneToMany, types.ManyToOne, types.ManyToMany:
	default:
		return fail("invalid relType %q", attr.RelType)
	}
	if attr.Target == "" {
		return fail("relation must declare a target")
	}
	target, ok := items[attr.Target]
	if !ok {
		return fail("unknown target item %q", attr.Target)
	}
	if attr.MappedBy != "" && attr.InversedBy != "" {
		return fail("mappedBy and inversedBy are mutually exclusive")
	}
	if attr.MappedBy != "" {
		if _, ok := target.Attribute(attr.MappedBy); !ok {
			return fail("mappedBy %q is not an attribute of %q", attr.MappedBy, attr.Target)
		}
	}
	if attr.InversedBy != "" {
		if _, ok := target.Attribute(attr.InversedBy); !ok {
			return fail("inversedBy %q is not an attribute of %q", attr.InversedBy, attr.Target)
		}
	}
	return nil
}

// requireReferencedItem checks that the item backing a media/location
// attribute is loaded and carries the field the compilers project.
func requireReferencedItem(items map[string]*types.Item, item *types.Item, name, target, field string) error {
	ref, ok := items[target]
	if !ok {
		return &types.SchemaError{Item: item.Name, Attribute: name, Reason: fmt.Sprintf("requires item %q to be registered", target)}
	}
	if _, ok := ref.Attribute(field); !ok {
		return &types.SchemaError{Item: target, Attribute: field, Reason: "required field is not defined"}
	}
	return nil
}
