package profile

import "errors"

var (
	// ErrProfileNotFound is returned when an identifier is not in the table.
	ErrProfileNotFound = errors.New("profile: not found")

	// ErrInvalidProfile is returned when a profile violates its bounds invariants.
	ErrInvalidProfile = errors.New("profile: invalid")
)
