package engine

import (
	"errors"
	"fmt"

	"github.com/san-kum/mdscript/internal/script"
)

// Domain errors for directive processing.
var (
	// ErrUnknownDirective indicates a command name the registry does not know.
	ErrUnknownDirective = errors.New("engine: unknown directive")

	// ErrMalformed indicates a wrong argument count or an unparsable argument.
	ErrMalformed = errors.New("engine: malformed directive")

	// ErrUndefinedReference indicates a reference to a compute, fix or dump
	// ID that has not been defined yet.
	ErrUndefinedReference = errors.New("engine: reference to undefined ID")

	// ErrDuplicateID indicates an ID that is already in use.
	ErrDuplicateID = errors.New("engine: ID already in use")

	// ErrNoIntegrator indicates a run with no time-integration fix defined.
	ErrNoIntegrator = errors.New("engine: run requires a time-integration fix")

	// ErrCanceled indicates sequencing was interrupted by its context.
	ErrCanceled = errors.New("engine: sequencing canceled by context")
)

// DirectiveError wraps an error with the directive that caused it.
type DirectiveError struct {
	Index     int
	Directive script.Directive
	Wrapped   error
}

func (e *DirectiveError) Error() string {
	if e.Directive.Line > 0 {
		return fmt.Sprintf("line %d: %s: %v", e.Directive.Line, e.Directive.Name, e.Wrapped)
	}
	return fmt.Sprintf("directive %d: %s: %v", e.Index+1, e.Directive.Name, e.Wrapped)
}

func (e *DirectiveError) Unwrap() error {
	return e.Wrapped
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

func undefined(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrUndefinedReference, kind, id)
}

func duplicate(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrDuplicateID, kind, id)
}
