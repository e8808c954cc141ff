package script

import (
	"errors"
	"fmt"
)

var (
	// ErrUnterminatedQuote indicates a quoted argument with no closing quote.
	ErrUnterminatedQuote = errors.New("script: unterminated quote")

	// ErrDanglingContinuation indicates a '&' on the last line of input.
	ErrDanglingContinuation = errors.New("script: continuation at end of input")
)

// ParseError wraps a reader error with the line it occurred on.
type ParseError struct {
	Line    int
	Wrapped error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Wrapped)
}

func (e *ParseError) Unwrap() error {
	return e.Wrapped
}
