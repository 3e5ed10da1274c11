package scan

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-ivscan/device"
)

var (
	// ErrUnexpectedInstrument indicates an identification string that does not
	// contain the configured manufacturer and model.
	ErrUnexpectedInstrument = errors.New("scan: unexpected instrument")

	// ErrEmptySampleSet indicates statistics requested over no samples.
	ErrEmptySampleSet = errors.New("scan: empty sample set")

	// ErrInvalidTransition indicates a state change not allowed by the state machine.
	ErrInvalidTransition = errors.New("scan: invalid state transition")

	// ErrInvalidPlan indicates a ramp plan that cannot be run.
	ErrInvalidPlan = errors.New("scan: invalid ramp plan")

	// ErrAlreadyRun indicates a second Run on the same Controller.
	ErrAlreadyRun = errors.New("scan: controller already ran")

	// ErrIdentityRequired indicates a missing manufacturer or model for a role.
	ErrIdentityRequired = errors.New("scan: instrument identity required")
)

// UnexpectedInstrumentError carries the identification string of the wrong
// instrument.
type UnexpectedInstrumentError struct {
	Role     device.Role
	Expected Identity
	Raw      string
}

func (e *UnexpectedInstrumentError) Error() string {
	return fmt.Sprintf("%s: %s expected %s, found %q", ErrUnexpectedInstrument, e.Role, e.Expected, e.Raw)
}

func (e *UnexpectedInstrumentError) Is(target error) bool { return target == ErrUnexpectedInstrument }

// AbortError reports where a run stopped. Stage is -1 when the run stopped
// outside of a ramp stage.
type AbortError struct {
	State   State
	Stage   int
	Voltage float64
	Err     error
}

func (e *AbortError) Error() string {
	if e.Stage < 0 {
		return fmt.Sprintf("scan: aborted in %s: %v", e.State, e.Err)
	}

	return fmt.Sprintf("scan: aborted in %s at stage %d (%g V): %v", e.State, e.Stage, e.Voltage, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }
