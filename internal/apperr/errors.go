// Package apperr defines the error taxonomy shared by every subsystem.
// Callers classify failures with errors.Is against these sentinels.
package apperr

import "errors"

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the actor lacks rights to the entity.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict means a uniqueness or ordering invariant was violated.
	ErrConflict = errors.New("conflict")

	// ErrSessionClosed means the quiz session no longer accepts answers.
	ErrSessionClosed = errors.New("session closed")

	// ErrValidation means the input is malformed or out of range.
	ErrValidation = errors.New("validation failed")

	// ErrTransient means the backing store is unavailable; retry.
	ErrTransient = errors.New("temporarily unavailable")
)
