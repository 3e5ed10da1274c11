package device

import (
	"errors"
	"fmt"
)

// ErrClosed indicates a call on a Device after Close.
var ErrClosed = errors.New("device: closed")

// CommandError identifies the role, command and raw response of a failed
// device operation.
type CommandError struct {
	Role    Role
	Command string
	// Raw is the undecoded response, empty when the failure happened before
	// a response was read.
	Raw string
	Err error
}

func (e *CommandError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("device: %s: %q failed (raw response %q): %v", e.Role, e.Command, e.Raw, e.Err)
	}

	return fmt.Sprintf("device: %s: %q failed: %v", e.Role, e.Command, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }
