package domain

import "errors"

// Sentinel error kinds (spec §7). Repositories and components wrap these
// with fmt.Errorf("...: %w", ErrX) at the point of failure; the C10 boundary
// unwraps with errors.Is to choose an HTTP status.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("unavailable")
	ErrCancelled       = errors.New("cancelled")
	ErrInvariant       = errors.New("invariant violation")
	ErrStorage         = errors.New("storage error")
)
