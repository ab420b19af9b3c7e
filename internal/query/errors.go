package query

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrMalformedQuery  = errors.New("malformed query")
)

// InvalidArgumentError reports a builder call rejected before it touched any state.
type InvalidArgumentError struct {
	Method string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Method, ErrInvalidArgument, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidArgument.
func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

func invalidArg(method, format string, args ...interface{}) *InvalidArgumentError {
	return &InvalidArgumentError{
		Method: method,
		Reason: fmt.Sprintf(format, args...),
	}
}

func malformed(pos int, format string, args ...interface{}) error {
	return fmt.Errorf("%w: token %d: %s", ErrMalformedQuery, pos, fmt.Sprintf(format, args...))
}
