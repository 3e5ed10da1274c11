package monitor

import "errors"

var (
	// ErrRunNotFound is returned for an id that is not registered.
	ErrRunNotFound = errors.New("monitor: run not found")
	// ErrRunFinished is returned when aborting a run in a terminal state.
	ErrRunFinished = errors.New("monitor: run already finished")
	// ErrDuplicateRun is returned when registering an id twice.
	ErrDuplicateRun = errors.New("monitor: run already registered")
)
