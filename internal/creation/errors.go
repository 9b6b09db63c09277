package creation

import "errors"

var (
	// ErrNotFound is returned when the requested creation does not exist.
	ErrNotFound = errors.New("creation not found")

	// ErrInvalidCreation is returned when a record fails validation, for
	// example an import with no ID or empty content.
	ErrInvalidCreation = errors.New("invalid creation")
)
