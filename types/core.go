package types

import "errors"

// System attribute names shared by every Item
const (
	AttrID         = "id"
	AttrConfigID   = "configId"
	AttrMajorRev   = "majorRev"
	AttrMinorRev   = "minorRev"
	AttrLocale     = "locale"
	AttrCurrent    = "current"
	AttrLockedBy   = "lockedBy"
	AttrPermission = "permission"
	AttrLifecycle  = "lifecycle"
	AttrState      = "state"
	AttrCreatedAt  = "createdAt"
	AttrCreatedBy  = "createdBy"
	AttrUpdatedAt  = "updatedAt"
	AttrUpdatedBy  = "updatedBy"
)

// Fields of the referenced records behind media and location attributes
const (
	MediaFilenameField    = "filename"
	LocationLatitudeField = "latitude"
	LocationLongField     = "longitude"
	LocationLabelField    = "label"
)

// ItemData is a generic record keyed by attribute name.
// Relation-valued fields are shallow: {"data": {"id": ..., <title>: ...}}.
// A record returned by an operation is never mutated; each successful
// operation produces a new one.
type ItemData map[string]interface{}

// String returns a string-typed field or "" when absent
func (d ItemData) String(name string) string {
	if v, ok := d[name].(string); ok {
		return v
	}
	return ""
}

// ID returns the record id; empty for drafts
func (d ItemData) ID() string { return d.String(AttrID) }

// ConfigID returns the id shared by all versions and localizations
func (d ItemData) ConfigID() string { return d.String(AttrConfigID) }

// MajorRev returns the major revision
func (d ItemData) MajorRev() string { return d.String(AttrMajorRev) }

// Locale returns the locale of a localized record
func (d ItemData) Locale() string { return d.String(AttrLocale) }

// State returns the lifecycle state
func (d ItemData) State() string { return d.String(AttrState) }

// Current reports whether the record is the active version
func (d ItemData) Current() bool {
	v, _ := d[AttrCurrent].(bool)
	return v
}

// LockedBy returns the id of the locking user. Both the plain id form and
// the shallow relation form are understood.
func (d ItemData) LockedBy() string { return d.RelationID(AttrLockedBy) }

// Lifecycle returns the lifecycle id, plain or shallow relation form
func (d ItemData) Lifecycle() string { return d.RelationID(AttrLifecycle) }

// RelationID extracts the target id from a relation field
func (d ItemData) RelationID(name string) string {
	switch v := d[name].(type) {
	case string:
		return v
	case map[string]interface{}:
		if inner, ok := v["data"].(map[string]interface{}); ok {
			id, _ := inner[AttrID].(string)
			return id
		}
		id, _ := v[AttrID].(string)
		return id
	default:
		return ""
	}
}

// Clone returns a shallow copy of the record
func (d ItemData) Clone() ItemData {
	out := make(ItemData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Ref builds the shallow relation value {"data": {...}}
func Ref(fields map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"data": fields}
}

// Pagination is the pagination metadata of a read response
type Pagination struct {
	Page      int `json:"page" yaml:"page"`
	PageCount int `json:"pageCount" yaml:"pageCount"`
	PageSize  int `json:"pageSize" yaml:"pageSize"`
	Total     int `json:"total" yaml:"total"`
}

// Page is the typed result of a read operation (and of purge)
type Page struct {
	Data       []ItemData `json:"data" yaml:"data"`
	Pagination Pagination `json:"pagination" yaml:"pagination"`

	// FilterErrors lists the filters left out of the read because their
	// values were malformed. The rest of the request still applied.
	FilterErrors []error `json:"-" yaml:"-"`
}

// Err joins FilterErrors; nil when every filter applied
func (p *Page) Err() error {
	return errors.Join(p.FilterErrors...)
}

// LockResult is the soft-failure result of lock and unlock
type LockResult struct {
	Success bool     `json:"success" yaml:"success"`
	Data    ItemData `json:"data,omitempty" yaml:"data,omitempty"`
}

// SortSpec is one generic sort entry from a grid
type SortSpec struct {
	AttributeID string
	Descending  bool
}

// FilterSpec is one generic column filter with its raw string value
type FilterSpec struct {
	AttributeID string
	Value       string
}

// PaginationInput is passed through to the backend unchanged
type PaginationInput struct {
	Page     int `json:"page" yaml:"page"`
	PageSize int `json:"pageSize" yaml:"pageSize"`
}

// QueryRequest is a generic sort/filter/paginate request
type QueryRequest struct {
	Sort       []SortSpec
	Filters    []FilterSpec
	Pagination PaginationInput
}

// Filter is a compiled predicate document keyed by attribute name
type Filter map[string]interface{}
