package model

import "errors"

// Domain error kinds. Surfaces map these to transport-specific replies;
// nothing in the core treats any of them as fatal.
var (
	// ErrStoreUnavailable wraps a failed read or write of the shared
	// document (network error, timeout, remote error).
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrNotFound means a referenced task or family does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden means the access policy denied the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation means caller-supplied input violates a constraint.
	ErrValidation = errors.New("invalid input")

	// ErrAlreadyMember means the actor already belongs to a family.
	ErrAlreadyMember = errors.New("already a family member")
)
