package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownOperation is returned when an invocation names an operation
// that is not materialized in the session. The model may have forgotten
// to load its category first.
var ErrUnknownOperation = errors.New("unknown operation")

// ErrUnknownCategory is returned when a meta operation names a category
// that the registry does not know.
var ErrUnknownCategory = errors.New("unknown tool category")

// BindError describes why invocation arguments could not be bound to an
// operation's parameter list.
type BindError struct {
	Tool    string
	Missing []string // required parameters that were not supplied
	Unknown []string // supplied keys that the operation does not declare
	Param   string   // parameter whose value was rejected
	Problem string   // description of the rejected value
}

// Error implements the error interface.
func (e *BindError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("%s: missing required argument(s): %v", e.Tool, e.Missing)
	case len(e.Unknown) > 0:
		return fmt.Sprintf("%s: unknown argument(s): %v", e.Tool, e.Unknown)
	default:
		return fmt.Sprintf("%s: argument %q %s", e.Tool, e.Param, e.Problem)
	}
}
