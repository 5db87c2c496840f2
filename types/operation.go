package types

// OperationKind names a read operation or one lifecycle transition
type OperationKind string

const (
	OpFind               OperationKind = "find"
	OpCreate             OperationKind = "create"
	OpCreateVersion      OperationKind = "createVersion"
	OpCreateLocalization OperationKind = "createLocalization"
	OpUpdate             OperationKind = "update"
	OpDelete             OperationKind = "delete"
	OpPurge              OperationKind = "purge"
	OpLock               OperationKind = "lock"
	OpUnlock             OperationKind = "unlock"
	OpPromote            OperationKind = "promote"
)

// MutationKinds lists every write operation in table order
var MutationKinds = []OperationKind{
	OpCreate, OpCreateVersion, OpCreateLocalization, OpUpdate,
	OpDelete, OpPurge, OpLock, OpUnlock, OpPromote,
}

// DeletingStrategy controls what happens to records referencing a deleted one
type DeletingStrategy string

const (
	NoAction DeletingStrategy = "NO_ACTION"
	SetNull  DeletingStrategy = "SET_NULL"
	Cascade  DeletingStrategy = "CASCADE"
)

// Valid reports whether s is a known strategy
func (s DeletingStrategy) Valid() bool {
	switch s {
	case NoAction, SetNull, Cascade:
		return true
	}
	return false
}

// Field is one entry of a response projection. Sub lists the selected
// fields of the referenced record for relation, media and location
// attributes, and is nil for scalars.
type Field struct {
	Name string
	Sub  []string
}

// MutationArgs carries the inputs of a write operation
type MutationArgs struct {
	ID                      string
	Data                    map[string]interface{}
	MajorRev                string
	Locale                  string
	CopyCollectionRelations bool
	DeletingStrategy        DeletingStrategy
	State                   string
	// Lifecycle is the lifecycle id of the entity being promoted
	Lifecycle string
}

// Operation is a compiled backend operation. It carries both the
// structured form (consumed by the local store) and the GraphQL document
// with its variables (consumed by the remote transport).
type Operation struct {
	Kind  OperationKind
	Item  string
	Field string

	Document  string
	Variables map[string]interface{}

	// Selection is the response projection
	Selection []Field

	// Read operations
	Filters    Filter
	Sort       []string
	Pagination *PaginationInput
	// FilterErrors lists filters dropped during compilation
	FilterErrors []error

	// Write operations
	ID                      string
	Data                    map[string]interface{}
	MajorRev                string
	Locale                  string
	CopyCollectionRelations bool
	DeletingStrategy        DeletingStrategy
	State                   string
}

// ErrorDescriptor is one backend-reported error
type ErrorDescriptor struct {
	Message    string                 `json:"message"`
	Path       []string               `json:"path,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// Response is the raw backend answer to an Operation
type Response struct {
	Data       []ItemData
	Pagination *Pagination
	// Success is set for lock and unlock only
	Success *bool
	Errors  []ErrorDescriptor
}
