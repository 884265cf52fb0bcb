// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

var (
	// ErrValidation indicates malformed or missing required input.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound indicates the requested project, role, member, group or asset does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvariant indicates a mutation that would leave a project without its
	// required admin or manager membership.
	ErrInvariant = errors.New("invariant violation")

	// ErrConflict indicates a unique constraint violation (e.g. duplicate name).
	ErrConflict = errors.New("resource conflict")

	// ErrUnauthorized indicates the actor lacks the role required for the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExternalSync indicates the authorization backend was unreachable or
	// rejected the request.
	ErrExternalSync = errors.New("external sync failure")
)
