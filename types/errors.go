package types

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is matching against the typed errors below
var (
	ErrSchema       = errors.New("schema error")
	ErrValidation   = errors.New("validation error")
	ErrTransport    = errors.New("transport error")
	ErrFilterFormat = errors.New("invalid filter format")
)

// SchemaError reports an unknown item/attribute or an illegal attribute
// configuration. It indicates a caller defect and is never caught internally.
type SchemaError struct {
	Item      string
	Attribute string
	Reason    string
}

func (e *SchemaError) Error() string {
	var msg strings.Builder
	msg.WriteString("schema error")
	if e.Item != "" {
		msg.WriteString(fmt.Sprintf(": item %q", e.Item))
	}
	if e.Attribute != "" {
		msg.WriteString(fmt.Sprintf(" attribute %q", e.Attribute))
	}
	if e.Reason != "" {
		msg.WriteString(": " + e.Reason)
	}
	return msg.String()
}

// Is matches ErrSchema
func (e *SchemaError) Is(target error) bool { return target == ErrSchema }

// ValidationError reports a failed mutation precondition. It is always
// raised before any network call.
type ValidationError struct {
	Operation OperationKind
	Item      string
	Field     string
	Reason    string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("cannot %s %s", e.Operation, e.Item)
	if e.Field != "" {
		msg += fmt.Sprintf(" (%s)", e.Field)
	}
	return msg + ": " + e.Reason
}

// Is matches ErrValidation
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// FilterFormatError reports a filter value that matched none of the
// accepted formats for its attribute. It is scoped to one filter.
type FilterFormatError struct {
	Attribute string
	Value     string
	Kind      string
	// Message is the localized text shown to users; empty until the
	// console localizes the error
	Message string
}

func (e *FilterFormatError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("invalid filter format for %s attribute %q: %q", e.Kind, e.Attribute, e.Value)
}

// Is matches ErrFilterFormat
func (e *FilterFormatError) Is(target error) bool { return target == ErrFilterFormat }

// TransportError is the single user-safe error raised when the backend
// rejects an otherwise well-formed operation. Message is already localized;
// Descriptors and Cause keep the full detail for logging.
type TransportError struct {
	Operation   OperationKind
	Item        string
	Message     string
	Descriptors []ErrorDescriptor
	Cause       error
}

func (e *TransportError) Error() string { return e.Message }

// Unwrap returns the underlying transport failure, if any
func (e *TransportError) Unwrap() error { return e.Cause }

// Is matches ErrTransport
func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Detail renders every descriptor for logs
func (e *TransportError) Detail() string {
	parts := make([]string, 0, len(e.Descriptors)+1)
	for _, d := range e.Descriptors {
		if len(d.Path) > 0 {
			parts = append(parts, fmt.Sprintf("%s (path %s)", d.Message, strings.Join(d.Path, ".")))
		} else {
			parts = append(parts, d.Message)
		}
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, "; ")
}
