package store

import "errors"

var (
	// ErrRunNotFound is returned when a run id is not in the database.
	ErrRunNotFound = errors.New("store: run not found")
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("store: closed")
)
