package types

import "sort"

// AttrType is the declared type of an attribute in an Item descriptor
type AttrType string

const (
	TypeString    AttrType = "string"
	TypeText      AttrType = "text"
	TypeUUID      AttrType = "uuid"
	TypeEmail     AttrType = "email"
	TypePassword  AttrType = "password"
	TypeSequence  AttrType = "sequence"
	TypeEnum      AttrType = "enum"
	TypeInt       AttrType = "int"
	TypeLong      AttrType = "long"
	TypeFloat     AttrType = "float"
	TypeDouble    AttrType = "double"
	TypeDecimal   AttrType = "decimal"
	TypeBool      AttrType = "bool"
	TypeDate      AttrType = "date"
	TypeTime      AttrType = "time"
	TypeDateTime  AttrType = "datetime"
	TypeTimestamp AttrType = "timestamp"
	TypeJSON      AttrType = "json"
	TypeArray     AttrType = "array"
	TypeMedia     AttrType = "media"
	TypeLocation  AttrType = "location"
	TypeRelation  AttrType = "relation"
)

// Kind groups attribute types by how the compilers treat them.
// Every switch over Kind in this module is exhaustive; KindInvalid
// only appears for types rejected at schema load.
type Kind int

const (
	KindInvalid Kind = iota
	KindString
	KindNumeric
	KindBool
	KindTemporal
	KindMedia
	KindLocation
	KindRelation
)

// String returns the string representation of the Kind
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumeric:
		return "numeric"
	case KindBool:
		return "bool"
	case KindTemporal:
		return "temporal"
	case KindMedia:
		return "media"
	case KindLocation:
		return "location"
	case KindRelation:
		return "relation"
	default:
		return "invalid"
	}
}

// Kind classifies the attribute type
func (t AttrType) Kind() Kind {
	switch t {
	case TypeString, TypeText, TypeUUID, TypeEmail, TypePassword, TypeSequence, TypeEnum, TypeJSON, TypeArray:
		return KindString
	case TypeInt, TypeLong, TypeFloat, TypeDouble, TypeDecimal:
		return KindNumeric
	case TypeBool:
		return KindBool
	case TypeDate, TypeTime, TypeDateTime, TypeTimestamp:
		return KindTemporal
	case TypeMedia:
		return KindMedia
	case TypeLocation:
		return KindLocation
	case TypeRelation:
		return KindRelation
	default:
		return KindInvalid
	}
}

// RelType is the cardinality of a relation attribute
type RelType string

const (
	OneToOne   RelType = "oneToOne"
	OneToMany  RelType = "oneToMany"
	ManyToOne  RelType = "manyToOne"
	ManyToMany RelType = "manyToMany"
)

// IsCollection reports whether the relation holds many targets
func (r RelType) IsCollection() bool {
	return r == OneToMany || r == ManyToMany
}

// Attribute describes a single typed field of an Item
type Attribute struct {
	Type        AttrType `yaml:"type" json:"type"`
	RelType     RelType  `yaml:"relType,omitempty" json:"relType,omitempty"`
	Target      string   `yaml:"target,omitempty" json:"target,omitempty"`
	MappedBy    string   `yaml:"mappedBy,omitempty" json:"mappedBy,omitempty"`
	InversedBy  string   `yaml:"inversedBy,omitempty" json:"inversedBy,omitempty"`
	Private     bool     `yaml:"private,omitempty" json:"private,omitempty"`
	ColHidden   bool     `yaml:"colHidden,omitempty" json:"colHidden,omitempty"`
	FieldHidden bool     `yaml:"fieldHidden,omitempty" json:"fieldHidden,omitempty"`
	Required    bool     `yaml:"required,omitempty" json:"required,omitempty"`
	ReadOnly    bool     `yaml:"readOnly,omitempty" json:"readOnly,omitempty"`

	// Type-specific facets
	Length    int      `yaml:"length,omitempty" json:"length,omitempty"`
	Precision int      `yaml:"precision,omitempty" json:"precision,omitempty"`
	Scale     int      `yaml:"scale,omitempty" json:"scale,omitempty"`
	EnumSet   []string `yaml:"enumSet,omitempty" json:"enumSet,omitempty"`
	MinRange  *float64 `yaml:"minRange,omitempty" json:"minRange,omitempty"`
	MaxRange  *float64 `yaml:"maxRange,omitempty" json:"maxRange,omitempty"`
}

// IsCollection reports whether the attribute is a oneToMany/manyToMany relation
func (a Attribute) IsCollection() bool {
	return a.Type == TypeRelation && a.RelType.IsCollection()
}

// ItemSpec holds the attribute map of an Item
type ItemSpec struct {
	Attributes map[string]Attribute `yaml:"attributes" json:"attributes"`
}

// Item is the schema descriptor of an entity type.
// Items are immutable once the registry has loaded them.
type Item struct {
	Name             string   `yaml:"name" json:"name"`
	PluralName       string   `yaml:"pluralName" json:"pluralName"`
	DisplayName      string   `yaml:"displayName,omitempty" json:"displayName,omitempty"`
	TitleAttribute   string   `yaml:"titleAttribute" json:"titleAttribute"`
	Versioned        bool     `yaml:"versioned,omitempty" json:"versioned,omitempty"`
	ManualVersioning bool     `yaml:"manualVersioning,omitempty" json:"manualVersioning,omitempty"`
	Localized        bool     `yaml:"localized,omitempty" json:"localized,omitempty"`
	NotLockable      bool     `yaml:"notLockable,omitempty" json:"notLockable,omitempty"`
	ReadOnly         bool     `yaml:"readOnly,omitempty" json:"readOnly,omitempty"`
	Spec             ItemSpec `yaml:"spec" json:"spec"`
}

// Attribute returns the named attribute
func (it *Item) Attribute(name string) (Attribute, bool) {
	attr, ok := it.Spec.Attributes[name]
	return attr, ok
}

// AttributeNames returns attribute names in a stable (sorted) order
func (it *Item) AttributeNames() []string {
	names := make([]string, 0, len(it.Spec.Attributes))
	for name := range it.Spec.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Title returns the display name, falling back to the item name
func (it *Item) Title() string {
	if it.DisplayName != "" {
		return it.DisplayName
	}
	return it.Name
}
