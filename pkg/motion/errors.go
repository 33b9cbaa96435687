package motion

import "errors"

var (
	// ErrNotFound is returned when a motion asset does not exist.
	ErrNotFound = errors.New("motion not found")

	// ErrInvalidMotion is returned when a motion document is malformed.
	ErrInvalidMotion = errors.New("invalid motion data")
)
