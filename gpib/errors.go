package gpib

import (
	"errors"
	"fmt"
)

var (
	// ErrAddressOutOfRange indicates a primary address outside [0, 30] or a
	// secondary address outside [0, 15].
	ErrAddressOutOfRange = errors.New("gpib: address out of range")

	// ErrDeviceInitFailed indicates that the bus controller could not be opened
	// or configured for the addressed device.
	ErrDeviceInitFailed = errors.New("gpib: device initialisation failed")

	// ErrSendFailed indicates a hardware error while writing a command.
	ErrSendFailed = errors.New("gpib: send failed")

	// ErrReadFailed indicates a hardware error, a timeout or a malformed
	// low-level transfer while reading a response.
	ErrReadFailed = errors.New("gpib: read failed")

	// ErrClearFailed indicates that the selected device clear failed.
	ErrClearFailed = errors.New("gpib: clear failed")

	// ErrNotOpen indicates an I/O call on a transport that is not open.
	ErrNotOpen = errors.New("gpib: transport not open")
)

// DeviceInitError carries the backend error code of a failed Open.
type DeviceInitError struct {
	Code int
	Err  error
}

func (e *DeviceInitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: code %d", ErrDeviceInitFailed, e.Code)
	}

	return fmt.Sprintf("%s: code %d: %v", ErrDeviceInitFailed, e.Code, e.Err)
}

func (e *DeviceInitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDeviceInitFailed}
	}

	return []error{ErrDeviceInitFailed, e.Err}
}

// SendError identifies the command whose transmission failed.
type SendError struct {
	Command string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("gpib: failed to send %q: %v", e.Command, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Is reports ErrSendFailed for every SendError, whatever the cause.
func (e *SendError) Is(target error) bool { return target == ErrSendFailed }
