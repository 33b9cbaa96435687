package mapping

import "errors"

var (
	// ErrUnknownMotion is returned when a mapping names a motion that is not
	// in the library.
	ErrUnknownMotion = errors.New("invalid motion")

	// ErrUnknownBehavior is returned when a mapping names an unknown behavior.
	ErrUnknownBehavior = errors.New("invalid behavior")

	// ErrUnknownHaptics is returned when updating a haptics key that was
	// never learned.
	ErrUnknownHaptics = errors.New("invalid haptics")

	// ErrUnknownGesture is returned when updating a gesture that is not in
	// the mapping file.
	ErrUnknownGesture = errors.New("invalid gesture")

	// ErrProgramNotFound is returned when deleting a program with no entries.
	ErrProgramNotFound = errors.New("program not found")
)
