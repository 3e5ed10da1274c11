package scpi

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedResponse indicates a wrong line or field count, or a field
	// that does not match the grammar.
	ErrMalformedResponse = errors.New("scpi: malformed response")

	// ErrUnitMismatch indicates a reading whose unit letter differs from the
	// requested one.
	ErrUnitMismatch = errors.New("scpi: unit mismatch")

	// ErrInvalidResponseType indicates a typed answer that does not match the
	// grammar of the requested type.
	ErrInvalidResponseType = errors.New("scpi: invalid response type")
)

// ParseError describes why a response could not be decoded.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: %s in %q", ErrMalformedResponse, e.Reason, e.Input)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMalformedResponse}
	}

	return []error{ErrMalformedResponse, e.Err}
}

// UnitMismatchError reports the expected and the received unit letter.
// Got is empty when the reading carried no unit.
type UnitMismatchError struct {
	Expected string
	Got      string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %q, got %q", ErrUnitMismatch, e.Expected, e.Got)
}

func (e *UnitMismatchError) Is(target error) bool { return target == ErrUnitMismatch }

// InvalidResponseTypeError reports a typed answer that did not decode as Kind.
type InvalidResponseTypeError struct {
	Raw  string
	Kind Kind
}

func (e *InvalidResponseTypeError) Error() string {
	return fmt.Sprintf("%s: %q is not a %s answer", ErrInvalidResponseType, e.Raw, e.Kind)
}

func (e *InvalidResponseTypeError) Is(target error) bool { return target == ErrInvalidResponseType }
